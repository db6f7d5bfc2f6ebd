package meta

import (
	"encoding/binary"
	"fmt"
	"io"
)

// StreamInfo describes the basic properties of a FLAC audio stream, per
// RFC 9639 §8.2. It is the first, mandatory metadata block.
type StreamInfo struct {
	// BlockSizeMin and BlockSizeMax are the minimum and maximum block size
	// (in inter-channel samples) used in the stream, 16..65535, min <= max.
	BlockSizeMin uint16
	BlockSizeMax uint16
	// FrameSizeMin and FrameSizeMax are the minimum and maximum frame size
	// in bytes, 0 meaning unknown.
	FrameSizeMin uint32
	FrameSizeMax uint32
	// SampleRate is the sample rate in Hz, 1..655350.
	SampleRate uint32
	// NChannels is the number of channels, 1..8.
	NChannels uint8
	// BitsPerSample is the bits per sample, 4..32.
	BitsPerSample uint8
	// NSamples is the total number of inter-channel samples, 0 = unknown.
	NSamples uint64
	// MD5sum is the MD5 signature of the unencoded audio data, may be all
	// zero if not computed.
	MD5sum [16]byte
}

const streamInfoLen = 34

// parseStreamInfo parses the StreamInfo metadata block body.
//
// Bit layout (34 bytes total):
//
//	16 bits: BlockSizeMin
//	16 bits: BlockSizeMax
//	24 bits: FrameSizeMin
//	24 bits: FrameSizeMax
//	20 bits: SampleRate
//	 3 bits: NChannels - 1
//	 5 bits: BitsPerSample - 1
//	36 bits: NSamples
//	128 bits: MD5sum
func (block *Block) parseStreamInfo() error {
	var buf [streamInfoLen]byte
	if _, err := io.ReadFull(block.lr, buf[:]); err != nil {
		return fmt.Errorf("meta.parseStreamInfo: %w", unexpected(err))
	}

	si := &StreamInfo{}
	si.BlockSizeMin = binary.BigEndian.Uint16(buf[0:2])
	si.BlockSizeMax = binary.BigEndian.Uint16(buf[2:4])
	si.FrameSizeMin = uint32(buf[4])<<16 | uint32(buf[5])<<8 | uint32(buf[6])
	si.FrameSizeMax = uint32(buf[7])<<16 | uint32(buf[8])<<8 | uint32(buf[9])

	// Bytes 10..17 (64 bits total) hold: 20 bits sample rate, 3 bits
	// channels-1, 5 bits bits-per-sample-1, 36 bits total samples, packed
	// MSB-first.
	bits64 := binary.BigEndian.Uint64(buf[10:18])

	si.SampleRate = uint32(bits64 >> 44)
	si.NChannels = uint8((bits64>>41)&0x7) + 1
	si.BitsPerSample = uint8((bits64>>36)&0x1F) + 1
	si.NSamples = bits64 & ((1 << 36) - 1)

	copy(si.MD5sum[:], buf[18:34])

	if si.BlockSizeMin < 16 || si.BlockSizeMin > si.BlockSizeMax {
		return fmt.Errorf("meta.parseStreamInfo: invalid block size range [%d, %d]", si.BlockSizeMin, si.BlockSizeMax)
	}
	if si.SampleRate == 0 || si.SampleRate > 655350 {
		return fmt.Errorf("meta.parseStreamInfo: invalid sample rate %d", si.SampleRate)
	}

	block.Body = si
	return nil
}
