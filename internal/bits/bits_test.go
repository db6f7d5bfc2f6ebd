package bits

import (
	"bytes"
	"testing"

	"github.com/icza/bitio"
	"github.com/stretchr/testify/require"

	"github.com/farcloser/mediacore/internal/hashutil/crc8"
)

func TestReadUnaryRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 2, 7, 8, 63, 64, 500}

	var buf bytes.Buffer
	bw := bitio.NewWriter(&buf)
	for _, v := range values {
		require.NoError(t, WriteUnary(bw, v))
	}
	require.NoError(t, bw.Close())

	br := NewReader(&buf)
	for _, want := range values {
		got, err := br.ReadUnary()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestReadUnaryDesyncGuard(t *testing.T) {
	// A run of more zero bits than maxUnaryRun with no terminating 1-bit
	// must error rather than hang, per the DoS guard. The two extra read
	// buffers keep input available until the guard's check fires.
	buf := bytes.Repeat([]byte{0x00}, maxUnaryRun/8+2*readBufSize)
	br := NewReader(bytes.NewReader(buf))
	_, err := br.ReadUnary()
	require.ErrorContains(t, err, "desynchronized")
}

func TestReadBitsSigned(t *testing.T) {
	tests := []struct {
		bits uint
		in   uint32
		want int32
	}{
		{4, 0b0111, 7},
		{4, 0b1000, -8},
		{4, 0b1111, -1},
		{8, 0x7F, 127},
		{8, 0x80, -128},
	}
	for _, tt := range tests {
		got := signExtend(tt.in, tt.bits)
		require.Equal(t, tt.want, got)
	}
}

func TestReadUTF8Coded(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want uint64
	}{
		{"1-byte", []byte{0x41}, 0x41},
		{"2-byte", []byte{0xC2, 0x80}, 0x80},
		{"3-byte", []byte{0xE0, 0xA0, 0x80}, 0x800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br := NewReader(bytes.NewReader(tt.in))
			got, err := br.ReadUTF8Coded()
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestReadUTF8CodedBadContinuation(t *testing.T) {
	br := NewReader(bytes.NewReader([]byte{0xC2, 0x00}))
	_, err := br.ReadUTF8Coded()
	require.Error(t, err)
}

func TestReadAlignedAndCRC(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	br := NewReader(bytes.NewReader(data))
	br.EnableCRC8()
	out := make([]byte, 4)
	require.NoError(t, br.ReadAligned(out))
	require.Equal(t, data, out)
	require.Equal(t, crc8.Checksum(data), br.CRC8())
	require.True(t, br.IsAligned())
}
