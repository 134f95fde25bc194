//go:build !unix

package fsutil

import (
	"errors"
	"os"
)

// writable checks dir by creating and removing a temporary file.
func writable(dir string) error {
	f, err := os.CreateTemp(dir, ".npm-audit-write-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// FreeBytes is not available on this platform.
func FreeBytes(dir string) (uint64, error) {
	return 0, errors.ErrUnsupported
}
