// Package fsutil checks output locations before an audit starts, so a bad
// --out path fails fast instead of after the lockfile walk.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/exploopio/npm-audit/pkg/errors"
)

// CheckOutputPath verifies that the directory that will hold path exists,
// is a directory and is writable by the current user. An existing path
// must not be a directory.
func CheckOutputPath(path string) error {
	const op = "fsutil.CheckOutputPath"

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return errors.E(errors.KindIO, op, fmt.Sprintf("%s is a directory", path))
	}

	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return errors.E(errors.KindIO, op, fmt.Sprintf("output directory %s", dir), err)
	}
	if !info.IsDir() {
		return errors.E(errors.KindIO, op, fmt.Sprintf("output directory %s is not a directory", dir))
	}
	if err := writable(dir); err != nil {
		return errors.E(errors.KindIO, op, fmt.Sprintf("output directory %s is not writable", dir), err)
	}
	return nil
}

// CheckOutputPaths runs CheckOutputPath on every non-empty path.
func CheckOutputPaths(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := CheckOutputPath(p); err != nil {
			return err
		}
	}
	return nil
}
