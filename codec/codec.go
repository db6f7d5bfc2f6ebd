// Package codec implements spec §4.11's PCM/companding codecs plus the
// FLAC bridge into demux.DecodeFlacChunk, and dispatches between them
// through a small name-keyed registry (spec §4.12's decoded-stream facade
// sits on top, in stream.go). Grounded on the teacher's own small,
// allocation-light per-sample loop style (meta/streaminfo.go's bit-packed
// field decode) generalized from one fixed layout to codec.Decoder's
// several.
package codec

import (
	"encoding/binary"
	"math"

	"github.com/farcloser/mediacore/demux"
	"github.com/farcloser/mediacore/errs"
)

// Decoder turns one MediaChunk's raw bytes into interleaved int16 PCM
// samples. Implementations must be safe to call repeatedly without
// internal mutable state leaking across chunks (FLAC's bridge is the one
// exception: it carries no state either, since flac.Stream.ParseNext
// already did the stateful decode upstream in the demuxer).
type Decoder interface {
	Decode(chunk []byte) ([]int16, error)
}

// DecoderFor returns the Decoder registered for codecName, or an
// Unsupported error for a recognized-but-unimplemented codec (e.g.
// "vorbis", "opus", "aac" — demuxed structurally but never decoded, per
// spec §4.11's scope).
func DecoderFor(codecName string, channels uint8, bitsPerSample uint8) (Decoder, error) {
	const op = "codec.DecoderFor"
	switch codecName {
	case "pcm":
		return &pcmDecoder{bitsPerSample: bitsPerSample, bigEndian: false}, nil
	case "pcm_be":
		return &pcmDecoder{bitsPerSample: bitsPerSample, bigEndian: true}, nil
	case "float":
		return &floatDecoder{bitsPerSample: bitsPerSample}, nil
	case "alaw":
		return &tableDecoder{table: &alawTable}, nil
	case "mulaw":
		return &tableDecoder{table: &mulawTable}, nil
	case "flac":
		return &flacBridgeDecoder{}, nil
	default:
		return nil, errs.New(op, errs.Unsupported, "no decoder for codec "+codecName)
	}
}

// pcmDecoder implements spec §4.11's integer PCM path: per-sample
// byte-swap and sign-extend to i32, then shift to i16.
type pcmDecoder struct {
	bitsPerSample uint8
	bigEndian     bool
}

func (d *pcmDecoder) Decode(chunk []byte) ([]int16, error) {
	bytesPerSample := int(d.bitsPerSample+7) / 8
	if bytesPerSample == 0 {
		return nil, errs.New("codec.pcmDecoder.Decode", errs.BadFormat, "zero bit depth")
	}
	n := len(chunk) / bytesPerSample
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		raw := chunk[i*bytesPerSample : (i+1)*bytesPerSample]
		v := readSigned(raw, d.bigEndian, int(d.bitsPerSample))
		out[i] = shiftToInt16(v, int(d.bitsPerSample))
	}
	return out, nil
}

// readSigned reads a sign-extended integer from a little- or big-endian
// byte slice of arbitrary width up to 32 bits.
func readSigned(raw []byte, bigEndian bool, bits int) int32 {
	var u uint32
	if bigEndian {
		for _, b := range raw {
			u = u<<8 | uint32(b)
		}
	} else {
		for i := len(raw) - 1; i >= 0; i-- {
			u = u<<8 | uint32(raw[i])
		}
	}
	width := uint(len(raw) * 8)
	if width < 32 && u&(1<<(width-1)) != 0 {
		u |= ^uint32(0) << width
	}
	return int32(u)
}

// shiftToInt16 normalizes an n-bit signed sample to int16 range, matching
// the FLAC decoder's own bit-depth conversion rule (spec §4.10, shared
// verbatim for PCM per §4.11): bits<16 shift up, bits==16 passthrough,
// bits>16 shift down and clamp.
func shiftToInt16(v int32, bits int) int16 {
	switch {
	case bits < 16:
		return int16(v << (16 - bits))
	case bits == 16:
		return int16(v)
	default:
		s := v >> (bits - 16)
		if s > 32767 {
			s = 32767
		}
		if s < -32768 {
			s = -32768
		}
		return int16(s)
	}
}

// floatDecoder implements spec §4.11's IEEE-754 float path: read, multiply
// by 32767, saturate to i16.
type floatDecoder struct {
	bitsPerSample uint8
}

func (d *floatDecoder) Decode(chunk []byte) ([]int16, error) {
	const op = "codec.floatDecoder.Decode"
	switch d.bitsPerSample {
	case 32:
		n := len(chunk) / 4
		out := make([]int16, n)
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(chunk[i*4 : i*4+4])
			out[i] = saturateFloat(float64(math.Float32frombits(bits)))
		}
		return out, nil
	case 64:
		n := len(chunk) / 8
		out := make([]int16, n)
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint64(chunk[i*8 : i*8+8])
			out[i] = saturateFloat(math.Float64frombits(bits))
		}
		return out, nil
	default:
		return nil, errs.New(op, errs.BadFormat, "unsupported float bit depth")
	}
}

func saturateFloat(f float64) int16 {
	v := f * 32767
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// tableDecoder implements spec §4.11's A-law/µ-law companding path: a
// static 256-entry lookup table, safe for concurrent use without
// synchronization since it is read-only after package init.
type tableDecoder struct {
	table *[256]int16
}

func (d *tableDecoder) Decode(chunk []byte) ([]int16, error) {
	out := make([]int16, len(chunk))
	for i, b := range chunk {
		out[i] = d.table[b]
	}
	return out, nil
}

// flacBridgeDecoder unpacks chunks produced by demux's FLAC demuxer, which
// already carry fully RFC-9639-decoded int32 samples (see the doc comment
// of demux's encodeFlacChunk for why re-parsing raw frame bytes
// here would be redundant), and applies the same bit-depth conversion
// shiftToInt16 uses for PCM.
type flacBridgeDecoder struct{}

func (d *flacBridgeDecoder) Decode(chunk []byte) ([]int16, error) {
	const op = "codec.flacBridgeDecoder.Decode"
	samples, nch, bps, blockSize, ok := demux.DecodeFlacChunk(chunk)
	if !ok {
		return nil, errs.New(op, errs.BadFormat, "malformed flac chunk payload")
	}
	out := make([]int16, nch*blockSize)
	for ch := 0; ch < nch; ch++ {
		for i := 0; i < blockSize; i++ {
			out[i*nch+ch] = shiftToInt16(samples[ch*blockSize+i], int(bps))
		}
	}
	return out, nil
}
