// Package fsutil holds the durable file primitives shared by the report
// store, the tool cache and the aggregate outputs.
package fsutil

import (
	"os"
	"path/filepath"

	"github.com/implicit-corpus/collector/errors"
)

// WriteFileAtomic writes data to a temp file next to path, fsyncs it and
// renames it into place. Readers see either the old or the new content,
// never a truncated file. Missing parent directories are created.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return errors.Wrapf(err, "create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return errors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Chmod(perm); err != nil {
		return errors.Wrapf(err, "chmod %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "rename into %s", path)
	}
	committed = true
	return SyncDir(dir)
}

// SyncDir fsyncs a directory so a completed rename survives a crash
func SyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return errors.Wrapf(err, "open %s", dir)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", dir)
	}
	return nil
}

// Exists reports whether path exists (file or directory)
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CopyFile copies src to dst atomically with the given permissions
func CopyFile(src, dst string, perm os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, "read %s", src)
	}
	return WriteFileAtomic(dst, data, perm)
}
