package media

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMediaChunkEOF(t *testing.T) {
	var c MediaChunk
	require.True(t, c.EOF())

	c.Data = []byte{1, 2, 3}
	require.False(t, c.EOF())
}

func TestMediaChunkReleaseInvokesCallbackOnce(t *testing.T) {
	calls := 0
	var c MediaChunk
	c.SetRelease(func() { calls++ })

	c.Release()
	c.Release()

	require.Equal(t, 1, calls)
}

func TestMediaChunkReleaseNilIsNoop(t *testing.T) {
	var c MediaChunk
	require.NotPanics(t, func() { c.Release() })
}

func TestAudioFrameNumSamples(t *testing.T) {
	f := AudioFrame{Samples: make([]int16, 8), Channels: 2}
	require.Equal(t, 4, f.NumSamples())
}

func TestAudioFrameNumSamplesZeroChannels(t *testing.T) {
	f := AudioFrame{Samples: make([]int16, 8), Channels: 0}
	require.Equal(t, 0, f.NumSamples())
}
