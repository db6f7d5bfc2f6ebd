// Package ioh implements the byte-source layer the rest of the pipeline
// demuxes from (spec §4.1): a small polymorphic interface over local files
// and HTTP range-capable resources, with retry and caching concerns kept
// out of callers' sight.
package ioh

import (
	"io"

	"github.com/farcloser/mediacore/errs"
)

// Whence mirrors io.Seeker's constants; re-exported so callers of this
// package don't need a second import just to seek.
const (
	SeekStart   = io.SeekStart
	SeekCurrent = io.SeekCurrent
	SeekEnd     = io.SeekEnd
)

// ByteSource is the polymorphic byte source named in spec §4.1. A demuxer
// owns exactly one ByteSource for its lifetime.
type ByteSource interface {
	// Read copies into buf, returning the number of bytes copied. Returns
	// (0, io.EOF) exactly at end of stream; short reads otherwise are
	// permitted and are not an error.
	Read(buf []byte) (int, error)
	// Seek repositions the source and returns the new absolute offset.
	// SeekEnd fails with an errs.Io/IoOutOfRange error for sources of
	// unknown size.
	Seek(offset int64, whence int) (int64, error)
	// Tell returns the current absolute offset.
	Tell() int64
	// Size returns the source's total byte length, or (0, false) when
	// unknown (e.g. an HTTP resource with no Content-Length).
	Size() (int64, bool)
	// EOF reports whether the most recent Read reached end of stream.
	EOF() bool
	// Close releases any resources (file descriptor, HTTP connection)
	// held by the source.
	Close() error
}

// errIo is a small constructor helper shared by the LocalFile and HttpRange
// implementations, matching errs' Op-qualified wrapping convention.
func errIo(op string, sub errs.IoSubkind, err error) error {
	return errs.WrapIo(op, sub, err)
}
