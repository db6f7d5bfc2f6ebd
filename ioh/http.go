package ioh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/farcloser/mediacore/errs"
	"github.com/farcloser/mediacore/mlog"
)

// rangeFetchSize is how much the HTTP source asks for per range request
// beyond the caller's immediate need, so small sequential reads (the
// common demuxer access pattern) don't issue one HTTP round trip per Read.
const rangeFetchSize = 256 << 10

// HttpRange is the ByteSource backed by an HTTP range-capable resource
// (spec §4.1). It serializes range requests behind an internal mutex and
// caches the most recently fetched contiguous window.
type HttpRange struct {
	url    string
	client *http.Client
	logger *mlog.Logger

	maxRetries int
	backoff    time.Duration

	mu            sync.Mutex
	size          int64
	sizeKnown     bool
	supportsRange bool
	degraded      bool // true once a server without range support is detected
	pos           int64
	eof           bool

	cacheStart int64
	cacheBuf   []byte
}

// HttpRangeOption configures an HttpRange at construction time.
type HttpRangeOption func(*HttpRange)

// WithHTTPClient overrides the default *http.Client (10s timeout, matching
// runtimeconfig.Default().HTTPTimeout).
func WithHTTPClient(c *http.Client) HttpRangeOption {
	return func(h *HttpRange) { h.client = c }
}

// WithHTTPRetry overrides the transient-error retry policy.
func WithHTTPRetry(maxRetries int, backoff time.Duration) HttpRangeOption {
	return func(h *HttpRange) { h.maxRetries, h.backoff = maxRetries, backoff }
}

// WithLogger attaches a logger; mlog.Default is used otherwise.
func WithLogger(l *mlog.Logger) HttpRangeOption {
	return func(h *HttpRange) { h.logger = l }
}

// OpenHttpRange issues a HEAD request to discover size and range support,
// then returns a ready-to-use HttpRange source.
func OpenHttpRange(ctx context.Context, url string, opts ...HttpRangeOption) (*HttpRange, error) {
	h := &HttpRange{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     mlog.Default,
		maxRetries: 3,
		backoff:    100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(h)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, errIo("ioh.OpenHttpRange", errs.IoOther, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errIo("ioh.OpenHttpRange", classifyNetErr(err), err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, errIo("ioh.OpenHttpRange", errs.IoOther, fmt.Errorf("HEAD %s: status %d", url, resp.StatusCode))
	}
	h.supportsRange = strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes")
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			h.size, h.sizeKnown = n, true
		}
	}
	return h, nil
}

func (h *HttpRange) Read(buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sizeKnown && h.pos >= h.size {
		h.eof = true
		return 0, io.EOF
	}

	if !h.inCache(h.pos) {
		if err := h.fetch(h.pos, int64(len(buf))); err != nil {
			return 0, err
		}
	}

	off := h.pos - h.cacheStart
	n := copy(buf, h.cacheBuf[off:])
	h.pos += int64(n)
	h.eof = h.sizeKnown && h.pos >= h.size
	if n == 0 {
		h.eof = true
		return 0, io.EOF
	}
	return n, nil
}

func (h *HttpRange) inCache(pos int64) bool {
	return h.cacheBuf != nil && pos >= h.cacheStart && pos < h.cacheStart+int64(len(h.cacheBuf))
}

func (h *HttpRange) fetch(start, want int64) error {
	length := want
	if length < rangeFetchSize {
		length = rangeFetchSize
	}
	end := start + length - 1
	if h.sizeKnown && end >= h.size {
		end = h.size - 1
	}

	var body []byte
	op := func() error {
		req, err := http.NewRequest(http.MethodGet, h.url, nil)
		if err != nil {
			return errIo("ioh.HttpRange.fetch", errs.IoOther, err)
		}
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
		resp, err := h.client.Do(req)
		if err != nil {
			return errIo("ioh.HttpRange.fetch", classifyNetErr(err), err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusOK && !h.supportsRange {
			// Server ignored the Range header: whole body, linear-only mode.
			h.degraded = true
		} else if resp.StatusCode != http.StatusPartialContent {
			return errIo("ioh.HttpRange.fetch", errs.IoOther, fmt.Errorf("GET %s: status %d", h.url, resp.StatusCode))
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return errIo("ioh.HttpRange.fetch", classifyNetErr(err), err)
		}
		body = b
		return nil
	}

	if err := h.withRetry(op); err != nil {
		return err
	}
	h.cacheStart = start
	h.cacheBuf = body
	return nil
}

func (h *HttpRange) withRetry(op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		var e *errs.Error
		if !errors.As(err, &e) || e.IoSub != errs.IoNetworkTransient {
			return err
		}
		h.logger.Warn(mlog.ChannelHTTP, "transient network error, retrying", "attempt", attempt, mlog.Err(err))
		time.Sleep(h.backoff)
	}
	return lastErr
}

func (h *HttpRange) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = h.pos + offset
	case io.SeekEnd:
		if !h.sizeKnown {
			return 0, errIo("ioh.HttpRange.Seek", errs.IoOutOfRange, fmt.Errorf("seek from end: unknown size"))
		}
		target = h.size + offset
	default:
		return 0, errIo("ioh.HttpRange.Seek", errs.IoOther, fmt.Errorf("invalid whence %d", whence))
	}

	if target < h.pos && !h.supportsRange {
		return 0, errIo("ioh.HttpRange.Seek", errs.IoNotSeekable, fmt.Errorf("server does not support range requests"))
	}

	h.pos = target
	h.eof = false
	return h.pos, nil
}

func (h *HttpRange) Tell() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

func (h *HttpRange) Size() (int64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size, h.sizeKnown
}

func (h *HttpRange) EOF() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.eof
}

func (h *HttpRange) Close() error { return nil }

func classifyNetErr(err error) errs.IoSubkind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errs.IoNetworkTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errs.IoNetworkTransient
	}
	return errs.IoNetworkFatal
}
