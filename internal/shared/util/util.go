package util

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// WithinDir reports whether path is dir or lies below it. Both are cleaned
// lexically; symlinks are not resolved.
func WithinDir(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// WriteFileWithDirs writes data to path, creating missing parent directories.
func WriteFileWithDirs(path string, data []byte, perm fs.FileMode) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, perm)
}
