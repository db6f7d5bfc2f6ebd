package meta

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/ioutil"
)

// Application is an APPLICATION metadata block: an application-specific ID
// followed by opaque, application-defined data.
type Application struct {
	ID   uint32
	Data []byte
}

// parseApplication parses an APPLICATION metadata block body.
func (block *Block) parseApplication() error {
	var idBuf [4]byte
	if _, err := io.ReadFull(block.lr, idBuf[:]); err != nil {
		return fmt.Errorf("meta.parseApplication: id: %w", unexpected(err))
	}
	app := &Application{ID: binary.BigEndian.Uint32(idBuf[:])}

	data, err := ioutil.ReadAll(block.lr)
	if err != nil {
		return fmt.Errorf("meta.parseApplication: data: %w", err)
	}
	app.Data = data

	block.Body = app
	return nil
}

// verifyPadding consumes (and discards) a PADDING metadata block body,
// which per RFC 9639 §8.3 carries no meaningful content — every byte
// should be zero, but that is not load-bearing, so this only drains the
// block without validating its content.
func (block *Block) verifyPadding() error {
	return block.Skip()
}
