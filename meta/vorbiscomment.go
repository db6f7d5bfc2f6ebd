package meta

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// VorbisComment holds the vendor tag and user comment fields of a
// VORBIS_COMMENT metadata block (also used, unchanged, as the Vorbis
// comment header packet inside Ogg streams).
//
// ref: https://www.xiph.org/vorbis/doc/v-comment.html
type VorbisComment struct {
	Vendor string
	Tags   []VorbisTag
}

// VorbisTag is one "NAME=VALUE" comment entry.
type VorbisTag struct {
	Name  string
	Value string
}

// Get returns the first tag value matching name (case-insensitive), or ""
// if absent.
func (vc *VorbisComment) Get(name string) string {
	for _, t := range vc.Tags {
		if strings.EqualFold(t.Name, name) {
			return t.Value
		}
	}
	return ""
}

// Map renders the tags as a string->string map, used by the decoded-stream
// facade's metadata accessor (spec §6).
func (vc *VorbisComment) Map() map[string]string {
	m := make(map[string]string, len(vc.Tags)+1)
	if vc.Vendor != "" {
		m["vendor"] = vc.Vendor
	}
	for _, t := range vc.Tags {
		m[t.Name] = t.Value
	}
	return m
}

func readVorbisString(r io.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", unexpected(err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	const maxCommentLen = 16 << 20 // 16 MiB guard against hostile length fields.
	if n > maxCommentLen {
		return "", fmt.Errorf("meta.readVorbisString: length %d exceeds sanity cap", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", unexpected(err)
	}
	return string(buf), nil
}

// parseVorbisComment parses a VORBIS_COMMENT metadata block body:
// length-prefixed vendor string, then a 32-bit comment count, then that
// many length-prefixed "name=value" strings, all little-endian.
func (block *Block) parseVorbisComment() error {
	vendor, err := readVorbisString(block.lr)
	if err != nil {
		return fmt.Errorf("meta.parseVorbisComment: vendor: %w", err)
	}

	var countBuf [4]byte
	if _, err := io.ReadFull(block.lr, countBuf[:]); err != nil {
		return fmt.Errorf("meta.parseVorbisComment: count: %w", unexpected(err))
	}
	count := binary.LittleEndian.Uint32(countBuf[:])

	vc := &VorbisComment{Vendor: vendor, Tags: make([]VorbisTag, 0, count)}
	for i := uint32(0); i < count; i++ {
		s, err := readVorbisString(block.lr)
		if err != nil {
			return fmt.Errorf("meta.parseVorbisComment: comment %d: %w", i, err)
		}
		name, value, _ := strings.Cut(s, "=")
		vc.Tags = append(vc.Tags, VorbisTag{Name: name, Value: value})
	}

	block.Body = vc
	return nil
}

// ParseVorbisCommentPacket parses a raw Ogg Vorbis/Opus comment header
// packet body (after the signature prefix has been stripped by the
// caller), reusing the same wire format as the FLAC VORBIS_COMMENT block.
func ParseVorbisCommentPacket(r io.Reader) (*VorbisComment, error) {
	block := &Block{lr: r}
	if err := block.parseVorbisComment(); err != nil {
		return nil, err
	}
	return block.Body.(*VorbisComment), nil
}
