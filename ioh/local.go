package ioh

import (
	"errors"
	"io"
	"os"

	"github.com/farcloser/mediacore/errs"
)

// LocalFile is the ByteSource backed by an *os.File.
type LocalFile struct {
	f    *os.File
	size int64
	pos  int64
	eof  bool
}

// OpenLocalFile opens path and returns a ready-to-use LocalFile source.
// On Unix, read-ahead is hinted via fadvise (see file_unix.go); on other
// platforms that hint is a no-op.
func OpenLocalFile(path string) (*LocalFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errIo("ioh.OpenLocalFile", classifyOpenErr(err), err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errIo("ioh.OpenLocalFile", errs.IoOther, err)
	}
	adviseSequential(f)
	return &LocalFile{f: f, size: fi.Size()}, nil
}

func classifyOpenErr(err error) errs.IoSubkind {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return errs.IoNotFound
	case errors.Is(err, os.ErrPermission):
		return errs.IoPermission
	default:
		return errs.IoOther
	}
}

func (l *LocalFile) Read(buf []byte) (int, error) {
	n, err := l.f.Read(buf)
	l.pos += int64(n)
	if err == io.EOF {
		l.eof = true
		return n, io.EOF
	}
	if err != nil {
		return n, errIo("ioh.LocalFile.Read", errs.IoOther, err)
	}
	l.eof = false
	return n, nil
}

func (l *LocalFile) Seek(offset int64, whence int) (int64, error) {
	pos, err := l.f.Seek(offset, whence)
	if err != nil {
		return 0, errIo("ioh.LocalFile.Seek", errs.IoOutOfRange, err)
	}
	l.pos = pos
	l.eof = false
	return pos, nil
}

func (l *LocalFile) Tell() int64 { return l.pos }

func (l *LocalFile) Size() (int64, bool) { return l.size, true }

func (l *LocalFile) EOF() bool { return l.eof }

func (l *LocalFile) Close() error { return l.f.Close() }
