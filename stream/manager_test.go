package stream

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/farcloser/mediacore/media"
)

var errSeekFailed = errors.New("seek failed")

// fakeChunkSource hands out a fixed sequence of chunks, then EOF, and
// records SeekMs calls.
type fakeChunkSource struct {
	mu      sync.Mutex
	chunks  []media.MediaChunk
	idx     int
	seekErr error
	seeks   []uint64
}

func (f *fakeChunkSource) ReadChunk() (media.MediaChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.chunks) {
		return media.MediaChunk{}, nil
	}
	c := f.chunks[f.idx]
	f.idx++
	return c, nil
}

func (f *fakeChunkSource) SeekMs(ms uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, ms)
	if f.seekErr != nil {
		return f.seekErr
	}
	f.idx = 0
	return nil
}

func makeChunks(n int) []media.MediaChunk {
	out := make([]media.MediaChunk, n)
	for i := range out {
		out[i] = media.MediaChunk{Data: []byte{byte(i)}, TimestampSamples: uint64(i)}
	}
	return out
}

func TestManagerDeliversChunksInOrderThenEOF(t *testing.T) {
	src := &fakeChunkSource{chunks: makeChunks(3)}
	m := New(src)
	m.Start()
	defer m.Stop()

	for i := 0; i < 3; i++ {
		c, err := m.ReadChunk()
		require.NoError(t, err)
		require.False(t, c.EOF())
		require.Equal(t, uint64(i), c.TimestampSamples)
	}

	c, err := m.ReadChunk()
	require.NoError(t, err)
	require.True(t, c.EOF())
}

func TestManagerSeekToResetsQueueAndForwardsToSource(t *testing.T) {
	// Exercised without Start: SeekTo's queue-reset and source-forwarding
	// behavior don't depend on a live producer goroutine.
	src := &fakeChunkSource{chunks: makeChunks(5)}
	m := New(src)
	m.queue = makeChunks(2)
	m.bytes = 2
	m.eof = true

	ok := m.SeekTo(2500)
	require.True(t, ok)

	require.Equal(t, []uint64{2500}, src.seeks)
	require.Empty(t, m.queue)
	require.Equal(t, 0, m.bytes)
	require.False(t, m.eof)
}

func TestManagerSeekToPropagatesSourceError(t *testing.T) {
	src := &fakeChunkSource{chunks: makeChunks(1), seekErr: errSeekFailed}
	m := New(src)

	ok := m.SeekTo(1000)
	require.False(t, ok)
	require.ErrorIs(t, m.LastError(), errSeekFailed)
}

func TestManagerSetPressureScalesLimitsTowardFloor(t *testing.T) {
	m := New(&fakeChunkSource{})

	m.SetPressure(0)
	require.Equal(t, defaultLimits, m.limits)

	m.SetPressure(100)
	require.Equal(t, minLimits, m.limits)
}

func TestManagerDiscardUnderPressureDropsOldestHalf(t *testing.T) {
	m := New(&fakeChunkSource{})
	m.queue = []media.MediaChunk{
		{Data: []byte{1}}, {Data: []byte{2}}, {Data: []byte{3}}, {Data: []byte{4}},
	}
	m.bytes = 4
	m.pressure = 90

	m.mu.Lock()
	m.discardUnderPressureLocked()
	m.mu.Unlock()

	require.Len(t, m.queue, 2)
	require.Equal(t, 2, m.bytes)
}

func TestManagerLastErrorNilAtCleanEOF(t *testing.T) {
	src := &fakeChunkSource{}
	src.chunks = nil
	m := New(src)
	m.Start()
	defer m.Stop()

	_, _ = m.ReadChunk()
	require.Nil(t, m.LastError())
}
