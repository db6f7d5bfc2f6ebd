package codec

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlawToLinearVectors(t *testing.T) {
	require.Equal(t, int16(-8), alawTable[0x55])
}

func TestMulawToLinearVectors(t *testing.T) {
	require.Equal(t, int16(0), mulawTable[0xFF])
}

func TestShiftToInt16(t *testing.T) {
	require.Equal(t, int16(1<<12), shiftToInt16(1, 4))
	require.Equal(t, int16(-1), shiftToInt16(-1, 16))
	require.Equal(t, int16(32767), shiftToInt16(1<<30, 24))
	require.Equal(t, int16(-32768), shiftToInt16(-(1 << 30), 24))
}

func TestReadSignedLittleAndBigEndian(t *testing.T) {
	require.Equal(t, int32(-1), readSigned([]byte{0xFF, 0xFF}, false, 16))
	require.Equal(t, int32(-1), readSigned([]byte{0xFF, 0xFF}, true, 16))
	require.Equal(t, int32(256), readSigned([]byte{0x00, 0x01}, false, 16))
	require.Equal(t, int32(1), readSigned([]byte{0x00, 0x01}, true, 16))
}

func TestPCMDecoderRoundTrips16Bit(t *testing.T) {
	d := &pcmDecoder{bitsPerSample: 16, bigEndian: false}
	chunk := make([]byte, 4)
	binary.LittleEndian.PutUint16(chunk[0:2], uint16(int16(-100)))
	binary.LittleEndian.PutUint16(chunk[2:4], uint16(int16(200)))
	out, err := d.Decode(chunk)
	require.NoError(t, err)
	require.Equal(t, []int16{-100, 200}, out)
}

func TestFloatDecoder32Bit(t *testing.T) {
	d := &floatDecoder{bitsPerSample: 32}
	chunk := make([]byte, 4)
	binary.LittleEndian.PutUint32(chunk, math.Float32bits(0.5))
	out, err := d.Decode(chunk)
	require.NoError(t, err)
	require.Equal(t, []int16{16383}, out)
}

func TestFloatDecoderSaturates(t *testing.T) {
	d := &floatDecoder{bitsPerSample: 32}
	chunk := make([]byte, 4)
	binary.LittleEndian.PutUint32(chunk, math.Float32bits(2.0))
	out, err := d.Decode(chunk)
	require.NoError(t, err)
	require.Equal(t, []int16{32767}, out)
}

func TestTableDecoderAlaw(t *testing.T) {
	d := &tableDecoder{table: &alawTable}
	out, err := d.Decode([]byte{0x55})
	require.NoError(t, err)
	require.Equal(t, []int16{-8}, out)
}
