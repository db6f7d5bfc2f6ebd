package codec

import (
	"context"
	"net/url"
	"strings"

	"github.com/farcloser/mediacore/demux"
	"github.com/farcloser/mediacore/errs"
	"github.com/farcloser/mediacore/ioh"
	"github.com/farcloser/mediacore/media"
	"github.com/farcloser/mediacore/stream"
)

// DecodedStream is the primary consumer API (spec §4.12): a demuxer +
// decoder pair bridged by a stream.Manager, exposing uniform PCM read,
// seek, and position queries regardless of container/codec.
type DecodedStream struct {
	demuxer demux.Demuxer
	decoder Decoder
	manager *stream.Manager
	info    media.StreamInfo

	queue     []int16 // small i16 sample queue between decoder output and consumer
	posSample uint64
	atEOF     bool
}

// Open probes uri, constructs the matching demuxer and codec, and starts
// the streaming manager. Supported schemes: "file://" (and bare paths,
// which default to file://), "http://", "https://".
func Open(ctx context.Context, uri string) (*DecodedStream, error) {
	src, path, err := openByteSource(ctx, uri)
	if err != nil {
		return nil, err
	}

	dmx, err := demux.Open(src, path)
	if err != nil {
		_ = src.Close()
		return nil, err
	}

	info := dmx.StreamInfo()
	dec, err := DecoderFor(info.CodecName, info.Channels, info.BitsPerSample)
	if err != nil {
		_ = dmx.Close()
		return nil, err
	}

	mgr := stream.New(dmx)
	mgr.Start()

	return &DecodedStream{demuxer: dmx, decoder: dec, manager: mgr, info: info}, nil
}

func openByteSource(ctx context.Context, uri string) (ioh.ByteSource, string, error) {
	const op = "codec.openByteSource"

	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || u.Scheme == "file" {
		path := uri
		if err == nil && u.Scheme == "file" {
			path = u.Path
		}
		src, err := ioh.OpenLocalFile(path)
		if err != nil {
			return nil, "", err
		}
		return src, path, nil
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		src, err := ioh.OpenHttpRange(ctx, uri)
		if err != nil {
			return nil, "", err
		}
		return src, u.Path, nil
	default:
		return nil, "", errs.New(op, errs.Unsupported, "unsupported URI scheme "+u.Scheme)
	}
}

// StreamInfo returns the demuxer's stream descriptor.
func (s *DecodedStream) StreamInfo() media.StreamInfo { return s.info }

// ReadPCM fills up to len(out) interleaved int16 samples, returning the
// number filled (0 at EOF).
func (s *DecodedStream) ReadPCM(out []int16) (int, error) {
	n := 0
	for n < len(out) {
		if len(s.queue) == 0 {
			if s.atEOF {
				break
			}
			if err := s.refill(); err != nil {
				return n, err
			}
			if len(s.queue) == 0 {
				s.atEOF = true
				break
			}
		}
		copied := copy(out[n:], s.queue)
		s.queue = s.queue[copied:]
		n += copied
	}
	return n, nil
}

func (s *DecodedStream) refill() error {
	chunk, err := s.manager.ReadChunk()
	if err != nil {
		return err
	}
	if chunk.EOF() {
		return nil
	}
	defer chunk.Release()

	samples, err := s.decoder.Decode(chunk.Data)
	if err != nil {
		return err
	}
	s.queue = append(s.queue, samples...)
	s.posSample = chunk.TimestampSamples
	return nil
}

// SeekToMs seeks to timestampMs, returning false on any failure (spec
// §4.12/§7: "seek_to_ms returns false on any failure").
func (s *DecodedStream) SeekToMs(timestampMs uint64) bool {
	s.queue = nil
	s.atEOF = false
	if !s.manager.SeekTo(timestampMs) {
		return false
	}
	s.posSample = timestampMs * uint64(s.info.SampleRate) / 1000
	return true
}

// PositionMs returns the current playback position in milliseconds.
func (s *DecodedStream) PositionMs() uint64 {
	if s.info.SampleRate == 0 {
		return 0
	}
	return s.posSample * 1000 / uint64(s.info.SampleRate)
}

// LengthMs returns the stream's total duration in milliseconds, 0 if
// unknown.
func (s *DecodedStream) LengthMs() uint64 { return s.info.DurationMs }

// EOF reports whether the stream has been fully consumed.
func (s *DecodedStream) EOF() bool { return s.atEOF && len(s.queue) == 0 }

// Close stops the streaming manager and releases the demuxer.
func (s *DecodedStream) Close() error {
	s.manager.Stop()
	return s.demuxer.Close()
}
