package demux

import (
	"bytes"
	"io"
	"testing"

	"github.com/farcloser/mediacore/ioh"
	"github.com/stretchr/testify/require"
)

// memSource is a minimal in-memory ioh.ByteSource for exercising Probe
// without touching the filesystem.
type memSource struct {
	data []byte
	pos  int64
	eof  bool
}

func newMemSource(data []byte) *memSource { return &memSource{data: data} }

func (m *memSource) Read(buf []byte) (int, error) {
	if m.pos >= int64(len(m.data)) {
		m.eof = true
		return 0, io.EOF
	}
	n := copy(buf, m.data[m.pos:])
	m.pos += int64(n)
	m.eof = m.pos >= int64(len(m.data))
	return n, nil
}

func (m *memSource) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case ioh.SeekStart:
		base = 0
	case ioh.SeekCurrent:
		base = m.pos
	case ioh.SeekEnd:
		base = int64(len(m.data))
	}
	m.pos = base + offset
	m.eof = false
	return m.pos, nil
}

func (m *memSource) Tell() int64            { return m.pos }
func (m *memSource) Size() (int64, bool)    { return int64(len(m.data)), true }
func (m *memSource) EOF() bool              { return m.eof }
func (m *memSource) Close() error           { return nil }

func TestProbeDetectsRIFF(t *testing.T) {
	data := append([]byte("RIFF"), bytes.Repeat([]byte{0}, 32)...)
	f, err := Probe(newMemSource(data), "")
	require.NoError(t, err)
	require.Equal(t, FormatRIFF, f)
}

func TestProbeDetectsISOBMFFAtOffset4(t *testing.T) {
	data := append([]byte{0, 0, 0, 32}, append([]byte("ftyp"), bytes.Repeat([]byte{0}, 24)...)...)
	f, err := Probe(newMemSource(data), "")
	require.NoError(t, err)
	require.Equal(t, FormatISOBMFF, f)
}

func TestProbePreservesSourcePosition(t *testing.T) {
	data := append([]byte("fLaC"), bytes.Repeat([]byte{0}, 32)...)
	src := newMemSource(data)
	_, _ = src.Seek(10, ioh.SeekStart)
	_, err := Probe(src, "")
	require.NoError(t, err)
	require.Equal(t, int64(10), src.Tell())
}

func TestProbeFallsBackToExtension(t *testing.T) {
	data := bytes.Repeat([]byte{0xAA}, 16)
	f, err := Probe(newMemSource(data), "song.flac")
	require.NoError(t, err)
	require.Equal(t, FormatFLAC, f)
}

func TestProbeReturnsErrorWhenNoMatch(t *testing.T) {
	data := bytes.Repeat([]byte{0xAA}, 16)
	_, err := Probe(newMemSource(data), "")
	require.Error(t, err)
}

func TestProbeDetectsMP3ByID3Tag(t *testing.T) {
	data := append([]byte("ID3"), bytes.Repeat([]byte{0}, 32)...)
	f, err := Probe(newMemSource(data), "")
	require.NoError(t, err)
	require.Equal(t, FormatMP3, f)
}
