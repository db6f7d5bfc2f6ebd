//go:build unix

package ioh

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential hints the kernel to read ahead aggressively, matching
// the sequential-scan access pattern every demuxer uses against a local
// file. Best-effort: an error here is not worth surfacing to the caller.
func adviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
