// Package stream implements the streaming manager named in spec §4.3: a
// single background producer per stream pulling MediaChunks from a demuxer
// into a bounded queue, with memory-pressure-adaptive limits. Grounded on
// original_source/src/StreamingManager.cpp (producer/consumer queue shape,
// the "discard half at pressure >= 85" policy) and, for goroutine lifecycle
// management, golang.org/x/sync/errgroup as wired in SPEC_FULL.md §11.
package stream

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/farcloser/mediacore/media"
	"github.com/farcloser/mediacore/mlog"
)

// ChunkSource is what a demuxer presents to the streaming manager: blocking
// chunk production plus timestamp-based seeking.
type ChunkSource interface {
	ReadChunk() (media.MediaChunk, error)
	SeekMs(ms uint64) error
}

// Limits is the queue discipline named in spec §4.3.
type Limits struct {
	MaxChunks int
	MaxBytes  int
}

// defaultLimits and the pressure-adaptive floor, matching
// internal/runtimeconfig.Default()'s literal values.
var (
	defaultLimits = Limits{MaxChunks: 32, MaxBytes: 1 << 20}
	minLimits     = Limits{MaxChunks: 4, MaxBytes: 64 << 10}
)

// highPressureDiscardThreshold is the pressure level at which queued
// chunks are proactively dropped between pops (spec §4.3).
const highPressureDiscardThreshold = 85

// Manager bridges a ChunkSource to a consumer through a bounded queue.
type Manager struct {
	source ChunkSource
	logger *mlog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []media.MediaChunk
	bytes    int
	limits   Limits
	pressure int
	eof      bool
	lastErr  error

	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
	stopped bool
}

// New creates a Manager over source, not yet started.
func New(source ChunkSource) *Manager {
	m := &Manager{source: source, logger: mlog.Default, limits: defaultLimits}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Start spawns the producer goroutine. Idempotent.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	ctx, cancel := context.WithCancel(context.Background())
	m.ctx, m.cancel = ctx, cancel
	g, gctx := errgroup.WithContext(ctx)
	m.group = g
	m.mu.Unlock()

	g.Go(func() error {
		m.produce(gctx)
		return nil
	})
}

// Stop signals the producer to exit and waits for it to join.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.mu.Lock()
	m.cond.Broadcast()
	m.mu.Unlock()

	if m.group != nil {
		_ = m.group.Wait()
	}
}

// produce runs on the producer goroutine until ctx is cancelled or the
// source reaches EOF.
func (m *Manager) produce(ctx context.Context) {
	for {
		m.mu.Lock()
		for !m.hasRoomLocked() {
			if ctx.Err() != nil {
				m.mu.Unlock()
				return
			}
			m.cond.Wait()
		}
		if ctx.Err() != nil {
			m.mu.Unlock()
			return
		}
		m.discardUnderPressureLocked()
		m.mu.Unlock()

		chunk, err := m.source.ReadChunk()
		if err != nil {
			m.mu.Lock()
			m.lastErr = err
			m.cond.Broadcast()
			m.mu.Unlock()
			return
		}

		m.mu.Lock()
		m.queue = append(m.queue, chunk)
		m.bytes += len(chunk.Data)
		if chunk.EOF() {
			m.eof = true
			m.cond.Broadcast()
			m.mu.Unlock()
			return
		}
		m.cond.Broadcast()
		m.mu.Unlock()
	}
}

func (m *Manager) hasRoomLocked() bool {
	return len(m.queue) < m.limits.MaxChunks && m.bytes < m.limits.MaxBytes
}

// discardUnderPressureLocked drops the oldest half of the queue when
// pressure is critical, per spec §4.3: "acceptable because re-reads are
// cheap for local files and range-requestable for HTTP."
func (m *Manager) discardUnderPressureLocked() {
	if m.pressure < highPressureDiscardThreshold || len(m.queue) < 2 {
		return
	}
	drop := len(m.queue) / 2
	for _, c := range m.queue[:drop] {
		c.Release()
		m.bytes -= len(c.Data)
	}
	m.logger.Warn(mlog.ChannelStreaming, "discarding queued chunks under critical pressure",
		"dropped", drop, "pressure", m.pressure)
	m.queue = append([]media.MediaChunk{}, m.queue[drop:]...)
}

// ReadChunk blocks until a chunk is available, the source reaches EOF
// (returns an empty chunk), or an error is recorded.
func (m *Manager) ReadChunk() (media.MediaChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.queue) == 0 {
		if m.lastErr != nil {
			return media.MediaChunk{}, m.lastErr
		}
		if m.eof {
			return media.MediaChunk{}, nil
		}
		if m.stopped {
			return media.MediaChunk{}, nil
		}
		m.cond.Wait()
	}

	chunk := m.queue[0]
	m.queue = m.queue[1:]
	m.bytes -= len(chunk.Data)
	m.cond.Broadcast() // wake producer: there's room now.
	return chunk, nil
}

// SeekTo clears the queue, seeks the source to timestamp_ms, and resets
// EOF/error state so the producer resumes from the new position.
func (m *Manager) SeekTo(timestampMs uint64) bool {
	m.mu.Lock()
	for _, c := range m.queue {
		c.Release()
	}
	m.queue = nil
	m.bytes = 0
	m.eof = false
	m.lastErr = nil
	m.mu.Unlock()

	if err := m.source.SeekMs(timestampMs); err != nil {
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		return false
	}

	m.mu.Lock()
	m.cond.Broadcast()
	m.mu.Unlock()
	return true
}

// SetBufferLimits overrides the queue's chunk-count and byte caps.
func (m *Manager) SetBufferLimits(maxChunks, maxBytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = Limits{MaxChunks: maxChunks, MaxBytes: maxBytes}
	m.cond.Broadcast()
}

// SetPressure linearly scales the queue limits down toward minLimits as
// pressure rises from 0 to 100, and arms the high-pressure discard policy.
func (m *Manager) SetPressure(pressure int) {
	if pressure < 0 {
		pressure = 0
	}
	if pressure > 100 {
		pressure = 100
	}

	scale := func(base, floor int) int {
		span := base - floor
		return floor + span*(100-pressure)/100
	}

	m.mu.Lock()
	m.pressure = pressure
	m.limits = Limits{
		MaxChunks: scale(defaultLimits.MaxChunks, minLimits.MaxChunks),
		MaxBytes:  scale(defaultLimits.MaxBytes, minLimits.MaxBytes),
	}
	m.cond.Broadcast()
	m.mu.Unlock()
}

// LastError returns the last error recorded by the producer, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}
