package meta

import (
	"encoding/binary"
	"fmt"
	"io"
)

// CueSheetTrackIndex is one index point within a CueSheetTrack.
type CueSheetTrackIndex struct {
	Offset     uint64
	IndexPoint uint8
}

// CueSheetTrack is one track entry of a CUESHEET metadata block.
type CueSheetTrack struct {
	Offset      uint64
	Num         uint8
	ISRC        string
	Type        uint8 // 0 = audio, 1 = non-audio
	PreEmphasis bool
	Indices     []CueSheetTrackIndex
}

// CueSheet is a CUESHEET metadata block, describing a CD table of
// contents.
type CueSheet struct {
	MCN            string
	NLeadInSamples uint64
	IsCompactDisc  bool
	Tracks         []CueSheetTrack
}

// parseCueSheet parses a CUESHEET metadata block body per RFC 9639 §8.7.
func (block *Block) parseCueSheet() error {
	var header [395]byte
	if _, err := io.ReadFull(block.lr, header[:]); err != nil {
		return fmt.Errorf("meta.parseCueSheet: header: %w", unexpected(err))
	}

	cs := &CueSheet{}
	cs.MCN = trimNulString(header[0:128])
	cs.NLeadInSamples = binary.BigEndian.Uint64(header[128:136])
	cs.IsCompactDisc = header[136]&0x80 != 0

	var numTracksBuf [1]byte
	if _, err := io.ReadFull(block.lr, numTracksBuf[:]); err != nil {
		return fmt.Errorf("meta.parseCueSheet: num tracks: %w", unexpected(err))
	}
	numTracks := numTracksBuf[0]

	for i := 0; i < int(numTracks); i++ {
		var tbuf [36]byte
		if _, err := io.ReadFull(block.lr, tbuf[:]); err != nil {
			return fmt.Errorf("meta.parseCueSheet: track %d: %w", i, unexpected(err))
		}
		track := CueSheetTrack{
			Offset:      binary.BigEndian.Uint64(tbuf[0:8]),
			Num:         tbuf[8],
			ISRC:        trimNulString(tbuf[9:21]),
			Type:        tbuf[21] >> 7,
			PreEmphasis: tbuf[21]&0x40 != 0,
		}
		numIndices := tbuf[35]
		for j := 0; j < int(numIndices); j++ {
			var ibuf [12]byte
			if _, err := io.ReadFull(block.lr, ibuf[:]); err != nil {
				return fmt.Errorf("meta.parseCueSheet: track %d index %d: %w", i, j, unexpected(err))
			}
			track.Indices = append(track.Indices, CueSheetTrackIndex{
				Offset:     binary.BigEndian.Uint64(ibuf[0:8]),
				IndexPoint: ibuf[8],
			})
		}
		cs.Tracks = append(cs.Tracks, track)
	}

	block.Body = cs
	return nil
}

func trimNulString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
