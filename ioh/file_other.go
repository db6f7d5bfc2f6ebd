//go:build !unix

package ioh

import "os"

// adviseSequential is a no-op on platforms without fadvise.
func adviseSequential(f *os.File) {}
