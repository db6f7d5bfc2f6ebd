// Package frame implements access to FLAC audio frames, per RFC 9639 §9.
//
// A FLAC audio stream is a sequence of frames, each independently
// decodable given the StreamInfo metadata block. A frame holds one
// subframe per output channel plus a small header describing block size,
// sample rate, channel assignment, and bit depth, guarded by an 8-bit CRC
// over the header and a 16-bit CRC over the whole frame.
package frame

import (
	"fmt"
	"io"

	"github.com/farcloser/mediacore/internal/bits"
)

// frameSyncCode is the 14-bit frame sync pattern, RFC 9639 §9.1.1.
const frameSyncCode = 0x3FFE

// Frame is one decoded (or header-only) FLAC audio frame.
type Frame struct {
	Header
	Subframes []*Subframe
}

// Header holds the per-frame parameters decoded from the frame header.
type Header struct {
	// HasFixedBlockSize is true when the blocking strategy bit is 0 (frame
	// number coding); false means variable block size (sample number
	// coding).
	HasFixedBlockSize bool
	// BlockSize is the number of inter-channel samples in this frame.
	BlockSize uint16
	// SampleRate in Hz, resolved against StreamInfo when the frame's own
	// code is 0.
	SampleRate uint32
	// Channels describes the channel count and any inter-channel
	// decorrelation in use.
	Channels Channels
	// BitsPerSample is the resolved bit depth (before any side-channel
	// +1 adjustment).
	BitsPerSample uint8
	// Num is the frame number (fixed blocking strategy) or the first
	// sample number of the frame (variable blocking strategy).
	Num uint64
}

// SampleNumber returns the first sample number covered by this frame. For
// the variable blocking strategy this is Num itself; for the fixed blocking
// strategy, Num is a frame number and is converted as Num * BlockSize,
// which assumes every earlier frame had this frame's block size (not the
// case for a stream's shorter final frame).
func (f *Frame) SampleNumber() uint64 {
	if f.HasFixedBlockSize {
		return f.Num * uint64(f.BlockSize)
	}
	return f.Num
}

// StreamInfo is the subset of meta.StreamInfo needed to resolve frame
// header fields that are "0 = from STREAMINFO". Declared locally (instead
// of importing meta) to keep frame decode-path dependencies minimal; flac.go
// adapts meta.StreamInfo to this shape.
type StreamInfo struct {
	SampleRate    uint32
	NChannels     uint8
	BitsPerSample uint8
}

// New parses only the frame header, leaving subframes unparsed. Used by
// Stream.Next, which needs the header but not the sample data.
func New(br *bits.Reader, si *StreamInfo) (*Frame, error) {
	f := &Frame{}
	if err := f.parseHeader(br, si); err != nil {
		return nil, err
	}
	return f, nil
}

// Parse parses a complete frame: header, one subframe per channel, the
// zero-padding footer alignment, and the frame's CRC-16 footer.
func Parse(br *bits.Reader, si *StreamInfo) (*Frame, error) {
	f := &Frame{}
	if err := f.parseHeader(br, si); err != nil {
		return nil, err
	}

	nch := f.Channels.Count()
	f.Subframes = make([]*Subframe, nch)
	for ch := 0; ch < nch; ch++ {
		bps := f.subframeBitsPerSample(ch)
		sub, err := parseSubframe(br, int(f.BlockSize), bps)
		if err != nil {
			return nil, fmt.Errorf("frame.Parse: subframe %d: %w", ch, err)
		}
		f.Subframes[ch] = sub
	}

	if _, err := br.AlignToByte(); err != nil {
		return nil, err
	}

	gotCRC := br.CRC16()
	var crcBuf [2]byte
	if err := br.ReadAligned(crcBuf[:]); err != nil {
		return nil, fmt.Errorf("frame.Parse: reading footer CRC: %w", unexpected(err))
	}
	wantCRC := uint16(crcBuf[0])<<8 | uint16(crcBuf[1])
	br.DisableCRC16()
	if gotCRC != wantCRC {
		return nil, &CRCError{Got: gotCRC, Want: wantCRC}
	}

	f.decorrelate()

	return f, nil
}

// CRCError reports a footer CRC-16 mismatch; callers treat this as
// spec §7 Corrupted(recoverable) and resync to the next frame.
type CRCError struct {
	Got, Want uint16
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("frame: CRC-16 mismatch: computed 0x%04x, footer says 0x%04x", e.Got, e.Want)
}

// subframeBitsPerSample returns the bit depth to use for subframe ch,
// adding the +1 side-channel bit named in spec §4.10.
func (f *Frame) subframeBitsPerSample(ch int) uint8 {
	bps := f.BitsPerSample
	switch f.Channels {
	case ChannelsLeftSide:
		if ch == 1 {
			bps++
		}
	case ChannelsRightSide:
		if ch == 0 {
			bps++
		}
	case ChannelsMidSide:
		if ch == 1 {
			bps++
		}
	}
	return bps
}

// parseHeader parses and CRC-8-validates the frame header.
func (f *Frame) parseHeader(br *bits.Reader, si *StreamInfo) error {
	br.EnableCRC8()
	defer br.DisableCRC8()
	br.EnableCRC16() // footer CRC starts accumulating from the first header byte.

	syncAndFlags, err := br.ReadBits(16)
	if err != nil {
		return fmt.Errorf("frame.parseHeader: %w", unexpected(err))
	}
	sync := syncAndFlags >> 2
	if sync != frameSyncCode {
		return fmt.Errorf("frame.parseHeader: invalid sync code 0x%04x", sync)
	}
	if syncAndFlags&0x2 != 0 {
		return fmt.Errorf("frame.parseHeader: reserved bit set")
	}
	f.HasFixedBlockSize = syncAndFlags&0x1 == 0

	blockSizeCode, err := br.ReadBits(4)
	if err != nil {
		return err
	}
	sampleRateCode, err := br.ReadBits(4)
	if err != nil {
		return err
	}
	chanCode, err := br.ReadBits(4)
	if err != nil {
		return err
	}
	f.Channels, err = parseChannels(uint8(chanCode))
	if err != nil {
		return fmt.Errorf("frame.parseHeader: %w", err)
	}

	sampleSizeCode, err := br.ReadBits(3)
	if err != nil {
		return err
	}
	reserved2, err := br.ReadBit()
	if err != nil {
		return err
	}
	if reserved2 {
		return fmt.Errorf("frame.parseHeader: reserved bit set")
	}

	num, err := br.ReadUTF8Coded()
	if err != nil {
		return fmt.Errorf("frame.parseHeader: frame/sample number: %w", err)
	}
	f.Num = num

	blockSize, err := resolveBlockSize(br, uint8(blockSizeCode))
	if err != nil {
		return err
	}
	f.BlockSize = blockSize

	sampleRate, err := resolveSampleRate(br, uint8(sampleRateCode), si)
	if err != nil {
		return err
	}
	f.SampleRate = sampleRate

	bps, err := resolveBitsPerSample(uint8(sampleSizeCode), si)
	if err != nil {
		return err
	}
	f.BitsPerSample = bps

	gotCRC := br.CRC8()
	var crcBuf [1]byte
	if err := br.ReadAligned(crcBuf[:]); err != nil {
		return fmt.Errorf("frame.parseHeader: reading header CRC: %w", unexpected(err))
	}
	if gotCRC != crcBuf[0] {
		return fmt.Errorf("frame.parseHeader: header CRC-8 mismatch: computed 0x%02x, header says 0x%02x", gotCRC, crcBuf[0])
	}

	// Consistency check against StreamInfo (spec §4.10 "Frame header
	// consistency"): only meaningful when the frame's own code was
	// non-zero (explicit), since code 0 means "take it from StreamInfo"
	// and is trivially consistent.
	if si != nil {
		if sampleRateCode != 0 && sampleRate != si.SampleRate {
			return fmt.Errorf("frame.parseHeader: sample rate %d does not match StreamInfo %d", sampleRate, si.SampleRate)
		}
		if sampleSizeCode != 0 && bps != si.BitsPerSample {
			return fmt.Errorf("frame.parseHeader: bits per sample %d does not match StreamInfo %d", bps, si.BitsPerSample)
		}
	}

	return nil
}

func resolveBlockSize(br *bits.Reader, code uint8) (uint16, error) {
	switch {
	case code == 0:
		return 0, fmt.Errorf("frame.resolveBlockSize: reserved code 0")
	case code == 1:
		return 192, nil
	case code >= 2 && code <= 5:
		return uint16(576 * (1 << (code - 2))), nil
	case code == 6:
		v, err := br.ReadBits(8)
		if err != nil {
			return 0, err
		}
		return uint16(v) + 1, nil
	case code == 7:
		v, err := br.ReadBits(16)
		if err != nil {
			return 0, err
		}
		return uint16(v) + 1, nil
	case code >= 8 && code <= 15:
		return uint16(256 * (1 << (code - 8))), nil
	default:
		return 0, fmt.Errorf("frame.resolveBlockSize: invalid code %d", code)
	}
}

func resolveSampleRate(br *bits.Reader, code uint8, si *StreamInfo) (uint32, error) {
	switch code {
	case 0:
		if si == nil {
			return 0, fmt.Errorf("frame.resolveSampleRate: code 0 requires StreamInfo")
		}
		return si.SampleRate, nil
	case 1:
		return 88200, nil
	case 2:
		return 176400, nil
	case 3:
		return 192000, nil
	case 4:
		return 8000, nil
	case 5:
		return 16000, nil
	case 6:
		return 22050, nil
	case 7:
		return 24000, nil
	case 8:
		return 32000, nil
	case 9:
		return 44100, nil
	case 10:
		return 48000, nil
	case 11:
		return 96000, nil
	case 12:
		v, err := br.ReadBits(8)
		if err != nil {
			return 0, err
		}
		return v * 1000, nil
	case 13:
		v, err := br.ReadBits(16)
		if err != nil {
			return 0, err
		}
		return v, nil
	case 14:
		v, err := br.ReadBits(16)
		if err != nil {
			return 0, err
		}
		return v * 10, nil
	default:
		return 0, fmt.Errorf("frame.resolveSampleRate: invalid/reserved code %d", code)
	}
}

func resolveBitsPerSample(code uint8, si *StreamInfo) (uint8, error) {
	switch code {
	case 0:
		if si == nil {
			return 0, fmt.Errorf("frame.resolveBitsPerSample: code 0 requires StreamInfo")
		}
		return si.BitsPerSample, nil
	case 1:
		return 8, nil
	case 2:
		return 12, nil
	case 4:
		return 16, nil
	case 5:
		return 20, nil
	case 6:
		return 24, nil
	case 7:
		return 32, nil
	default:
		return 0, fmt.Errorf("frame.resolveBitsPerSample: reserved/invalid code %d", code)
	}
}

// decorrelate reconstructs independent left/right channels from a
// side-channel assignment, per spec §4.10.
func (f *Frame) decorrelate() {
	if len(f.Subframes) != 2 {
		return
	}
	a, b := f.Subframes[0].Samples, f.Subframes[1].Samples
	switch f.Channels {
	case ChannelsLeftSide:
		for i := range a {
			b[i] = a[i] - b[i] // R = L - S
		}
	case ChannelsRightSide:
		for i := range a {
			a[i] = a[i] + b[i] // L = R + S
		}
	case ChannelsMidSide:
		for i := range a {
			m, s := a[i], b[i]
			mid := (m << 1) | (s & 1)
			a[i] = (mid + s) >> 1
			b[i] = (mid - s) >> 1
		}
	}
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
