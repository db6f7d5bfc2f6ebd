package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseConservation(t *testing.T) {
	p := New(0)

	bufs := make([]*Buffer, 0, 8)
	for i := 0; i < 8; i++ {
		bufs = append(bufs, p.Acquire(1000, "test"))
	}
	live := p.LiveBytes()
	require.Greater(t, live, int64(0))

	for _, b := range bufs {
		p.Release(b)
	}
	// Releasing at Low pressure returns buffers to their bin rather than
	// freeing them, so liveBytes is unchanged by Release alone.
	require.Equal(t, live, p.LiveBytes())

	// A subsequent Acquire for the same size class reuses a pooled buffer
	// rather than growing liveBytes further.
	reused := p.Acquire(1000, "test")
	require.Equal(t, live, p.LiveBytes())
	p.Release(reused)
}

func TestAcquireAboveMaxPooledSizeIsUnpooled(t *testing.T) {
	p := New(0)
	buf := p.Acquire(16<<20, "huge")
	require.False(t, buf.fromPool)
	require.GreaterOrEqual(t, cap(buf.Data), 16<<20)
}

func TestBinSizeFor(t *testing.T) {
	require.Equal(t, minBinSize, binSizeFor(1))
	require.Equal(t, minBinSize, binSizeFor(minBinSize))
	require.Equal(t, 1024, binSizeFor(minBinSize+1))
	require.Equal(t, 2048, binSizeFor(1025))
}

func TestBandFor(t *testing.T) {
	require.Equal(t, Low, bandFor(0))
	require.Equal(t, Low, bandFor(29))
	require.Equal(t, Medium, bandFor(30))
	require.Equal(t, Medium, bandFor(49))
	require.Equal(t, High, bandFor(50))
	require.Equal(t, High, bandFor(74))
	require.Equal(t, Critical, bandFor(75))
	require.Equal(t, Critical, bandFor(100))
}

func TestSetPressureCriticalDropsBins(t *testing.T) {
	p := New(0)
	buf := p.Acquire(1000, "test")
	p.Release(buf)
	require.Greater(t, p.LiveBytes(), int64(0))

	p.SetPressure(90)
	require.Equal(t, int64(0), p.LiveBytes())

	// Acquire still succeeds under Critical pressure (never blocks).
	fresh := p.Acquire(1000, "test")
	require.NotNil(t, fresh)
}

func TestSetPressureHighFlushesBinsAndLiveBytes(t *testing.T) {
	p := New(0)
	buf := p.Acquire(1000, "test")
	p.Release(buf)
	require.Greater(t, p.LiveBytes(), int64(0))

	p.SetPressure(60) // High band
	require.Equal(t, int64(0), p.LiveBytes())
}

func TestOnPressureChangeFiresOnTransition(t *testing.T) {
	p := New(0)
	var transitions [][2]Band
	p.OnPressureChange(func(old, new Band) {
		transitions = append(transitions, [2]Band{old, new})
	})

	p.SetPressure(10) // still Low: no transition
	require.Empty(t, transitions)

	p.SetPressure(40) // Low -> Medium
	require.Len(t, transitions, 1)
	require.Equal(t, Low, transitions[0][0])
	require.Equal(t, Medium, transitions[0][1])
}
