// Package bufseekio provides a buffered io.ReadSeeker.
//
// bufio.Reader buffers reads but does not implement io.Seeker, which
// NewSeek-style streaming APIs need in order to jump directly to a seek
// point's byte offset. ReadSeeker adds a Seek that invalidates the
// buffer and repositions the underlying seeker, while keeping bufio's
// read-ahead behavior for sequential access between seeks.
package bufseekio

import (
	"bufio"
	"io"
)

// ReadSeeker wraps an io.ReadSeeker with buffered reads.
type ReadSeeker struct {
	*bufio.Reader
	rs io.ReadSeeker
}

// NewReadSeeker returns a new buffered ReadSeeker reading from rs.
func NewReadSeeker(rs io.ReadSeeker) *ReadSeeker {
	return &ReadSeeker{
		Reader: bufio.NewReader(rs),
		rs:     rs,
	}
}

// Seek implements io.Seeker. It discards any buffered data before
// delegating to the underlying ReadSeeker, since buffered bytes were
// read from the old position and no longer correspond to the stream
// contents at the new one.
//
// For SeekCurrent, the offset is adjusted to account for unread bytes
// already sitting in the buffer, so the caller's notion of "current
// position" matches what it would be without buffering.
func (r *ReadSeeker) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekCurrent {
		offset -= int64(r.Reader.Buffered())
	}
	pos, err := r.rs.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	r.Reader.Reset(r.rs)
	return pos, nil
}
