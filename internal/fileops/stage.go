package fileops

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	lerrors "lockit/internal/errors"

	"github.com/google/uuid"
)

// StagingPath returns a fresh hidden name in dir for work in progress.
func StagingPath(dir string) string {
	return filepath.Join(dir, "."+uuid.NewString()+".tmp")
}

// ensureAbsent fails with ErrFileExists when path is taken.
func ensureAbsent(path string) error {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return lerrors.NewFileError("create", path, lerrors.ErrFileExists)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return lerrors.NewFileError("stat", path, err)
	}
}

// WriteNew writes data to path, which must not exist yet. The bytes go to a
// staging file in the same directory first and are synced before the
// rename, so path never holds a partial write.
func WriteNew(path string, data []byte, perm os.FileMode) (retErr error) {
	if err := ensureAbsent(path); err != nil {
		return err
	}

	tmp := StagingPath(filepath.Dir(path))
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return lerrors.NewFileError("create", tmp, err)
	}
	defer func() {
		if retErr != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return lerrors.NewFileError("write", tmp, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return lerrors.NewFileError("sync", tmp, err)
	}
	if err := f.Close(); err != nil {
		return lerrors.NewFileError("close", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return lerrors.NewFileError("rename", path, err)
	}
	return nil
}

// UnpackNew unpacks an archive into dest, which must not exist yet. The tree
// is built in a staging directory next to dest and renamed into place only
// once complete. On failure whatever plaintext reached the staging tree is
// erased.
func UnpackNew(data []byte, dest string) (retErr error) {
	if err := ensureAbsent(dest); err != nil {
		return err
	}

	tmp := StagingPath(filepath.Dir(dest))
	defer func() {
		if retErr != nil {
			_ = EraseDirectory(tmp, false)
			_ = os.RemoveAll(tmp)
		}
	}()

	if err := Unpack(data, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return lerrors.NewFileError("rename", dest, err)
	}
	return nil
}
