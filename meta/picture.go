package meta

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Picture is a PICTURE metadata block per RFC 9639 §8.8, carrying embedded
// cover art or other image data.
type Picture struct {
	Type        uint32
	MIME        string
	Description string
	Width       uint32
	Height      uint32
	Depth       uint32
	NumColors   uint32
	Data        []byte
}

func readU32Prefixed(r io.Reader, maxLen uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, unexpected(err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxLen {
		return nil, fmt.Errorf("length %d exceeds cap %d", n, maxLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, unexpected(err)
	}
	return buf, nil
}

// parsePicture parses a PICTURE metadata block body.
func (block *Block) parsePicture() error {
	var head [4]byte
	if _, err := io.ReadFull(block.lr, head[:]); err != nil {
		return fmt.Errorf("meta.parsePicture: type: %w", unexpected(err))
	}
	pic := &Picture{Type: binary.BigEndian.Uint32(head[:])}

	mime, err := readU32Prefixed(block.lr, 1<<16)
	if err != nil {
		return fmt.Errorf("meta.parsePicture: mime: %w", err)
	}
	pic.MIME = string(mime)

	desc, err := readU32Prefixed(block.lr, 1<<20)
	if err != nil {
		return fmt.Errorf("meta.parsePicture: description: %w", err)
	}
	pic.Description = string(desc)

	var dims [16]byte
	if _, err := io.ReadFull(block.lr, dims[:]); err != nil {
		return fmt.Errorf("meta.parsePicture: dims: %w", unexpected(err))
	}
	pic.Width = binary.BigEndian.Uint32(dims[0:4])
	pic.Height = binary.BigEndian.Uint32(dims[4:8])
	pic.Depth = binary.BigEndian.Uint32(dims[8:12])
	pic.NumColors = binary.BigEndian.Uint32(dims[12:16])

	data, err := readU32Prefixed(block.lr, 64<<20)
	if err != nil {
		return fmt.Errorf("meta.parsePicture: data: %w", err)
	}
	pic.Data = data

	block.Body = pic
	return nil
}
