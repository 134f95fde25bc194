package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/npm-audit/pkg/errors"
)

func TestCheckOutputPath(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, CheckOutputPath(filepath.Join(dir, "report.json")))

	existing := filepath.Join(dir, "old.json")
	require.NoError(t, os.WriteFile(existing, []byte("{}"), 0o644))
	assert.NoError(t, CheckOutputPath(existing), "existing files are overwritten")

	err := CheckOutputPath(filepath.Join(dir, "missing", "report.json"))
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))

	err = CheckOutputPath(dir)
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))

	err = CheckOutputPath(filepath.Join(existing, "report.json"))
	require.Error(t, err, "parent is a file")
}

func TestCheckOutputPath_ReadOnlyDir(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	dir := filepath.Join(t.TempDir(), "ro")
	require.NoError(t, os.Mkdir(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	err := CheckOutputPath(filepath.Join(dir, "report.json"))
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))
}

func TestCheckOutputPaths(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, CheckOutputPaths("", filepath.Join(dir, "a.json"), ""))
	assert.Error(t, CheckOutputPaths(filepath.Join(dir, "a.json"), filepath.Join(dir, "nope", "b.sarif")))
}

func TestFreeBytes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("not supported")
	}
	n, err := FreeBytes(t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, n)
}
