package meta

import (
	"encoding/binary"
	"fmt"
	"io"
)

// placeholderSampleNum marks a seek point that is reserved but not yet
// populated; it must be skipped during seek search, per RFC 9639 §8.4.
const placeholderSampleNum = 0xFFFFFFFFFFFFFFFF

// SeekPoint is one entry of a SeekTable: the absolute sample number where a
// target frame begins, that frame's byte offset relative to the first
// frame header, and the number of samples in that frame.
//
// ref: spec.md §3 "Seek point (FLAC)".
type SeekPoint struct {
	SampleNum uint64
	Offset    uint64
	NSamples  uint16
}

// IsPlaceholder reports whether p is a reserved placeholder entry, to be
// skipped during seek search.
func (p SeekPoint) IsPlaceholder() bool {
	return p.SampleNum == placeholderSampleNum
}

// SeekTable is a SEEKTABLE metadata block: a sequence of pre-computed seek
// points sorted by ascending sample number (placeholders aside).
type SeekTable struct {
	Points []SeekPoint
}

const seekPointLen = 18 // 8 + 8 + 2 bytes

// parseSeekTable parses a SEEKTABLE metadata block body: one or more fixed
// 18-byte seek point records filling the whole block length.
func (block *Block) parseSeekTable() error {
	if block.Length%seekPointLen != 0 {
		return fmt.Errorf("meta.parseSeekTable: length %d not a multiple of %d", block.Length, seekPointLen)
	}
	n := int(block.Length / seekPointLen)
	st := &SeekTable{Points: make([]SeekPoint, 0, n)}

	var buf [seekPointLen]byte
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(block.lr, buf[:]); err != nil {
			return fmt.Errorf("meta.parseSeekTable: %w", unexpected(err))
		}
		st.Points = append(st.Points, SeekPoint{
			SampleNum: binary.BigEndian.Uint64(buf[0:8]),
			Offset:    binary.BigEndian.Uint64(buf[8:16]),
			NSamples:  binary.BigEndian.Uint16(buf[16:18]),
		})
	}

	block.Body = st
	return nil
}
