package demux

import (
	"encoding/binary"

	"github.com/farcloser/mediacore/frame"
)

// encodeFlacChunk serializes an already-decoded frame.Frame into the wire
// shape DecodeFlacChunk expects: a small fixed header (channel count,
// bits-per-sample, block size) followed by channel-major int32 samples
// (all of channel 0, then all of channel 1, ...), little-endian. Chunks carry decoded samples rather than
// raw frame bytes because the hard RFC 9639 decode work (subframe/residual
// parsing, predictor reconstruction) already happened in flac.Stream.
// ParseNext — re-parsing raw bytes downstream would duplicate it.
func encodeFlacChunk(f *frame.Frame) []byte {
	nch := len(f.Subframes)
	blockSize := int(f.BlockSize)

	buf := make([]byte, 4+nch*blockSize*4)
	buf[0] = byte(nch)
	buf[1] = f.BitsPerSample
	binary.LittleEndian.PutUint16(buf[2:4], f.BlockSize)

	off := 4
	for ch := 0; ch < nch; ch++ {
		samples := f.Subframes[ch].Samples
		for i := 0; i < blockSize; i++ {
			var v int32
			if i < len(samples) {
				v = samples[i]
			}
			binary.LittleEndian.PutUint32(buf[off:off+4], uint32(v))
			off += 4
		}
	}
	return buf
}

// DecodeFlacChunk is the inverse of encodeFlacChunk, exported for
// codec's flacBridgeDecoder. It returns the int32 samples in channel-major
// order (all of channel 0 then all of channel 1, matching
// frame.Frame.Subframes' own layout) plus the channel count, bit depth and
// block size.
func DecodeFlacChunk(data []byte) (samples []int32, channels int, bitsPerSample uint8, blockSize int, ok bool) {
	if len(data) < 4 {
		return nil, 0, 0, 0, false
	}
	nch := int(data[0])
	bps := data[1]
	bs := int(binary.LittleEndian.Uint16(data[2:4]))

	want := 4 + nch*bs*4
	if len(data) < want {
		return nil, 0, 0, 0, false
	}

	out := make([]int32, nch*bs)
	off := 4
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
	}
	return out, nch, bps, bs, true
}
