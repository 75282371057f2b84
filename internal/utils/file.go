package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// WriteFileAtomic writes data next to path and renames it into place, so readers never
// observe a partially written file. The temp file is removed on any failure.
func WriteFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	tmpPath, err := StageFile(fs, path, data, perm)
	if err != nil {
		return err
	}
	if err := fs.Rename(tmpPath, path); err != nil {
		fs.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// StageFile writes data to a temp file in the directory of path and returns the temp
// name. The caller renames it into place or removes it.
func StageFile(fs afero.Fs, path string, data []byte, perm os.FileMode) (string, error) {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmpPath := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := afero.WriteFile(fs, tmpPath, data, perm); err != nil {
		fs.Remove(tmpPath)
		return "", fmt.Errorf("write %s: %w", tmpPath, err)
	}
	return tmpPath, nil
}
