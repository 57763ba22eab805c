// Package fsutil reads generated output without following paths out of it.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Dir is a directory opened as an os.Root. Reads through it cannot leave
// the directory, whether by ".." or by symlink. It is safe for concurrent
// use.
type Dir struct {
	root *os.Root
}

// OpenDir opens path for scoped reads.
func OpenDir(path string) (*Dir, error) {
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, err
	}
	return &Dir{root: root}, nil
}

// ReadFile reads the file at rel, a path relative to the directory.
func (d *Dir) ReadFile(rel string) ([]byte, error) {
	cleaned := filepath.Clean(rel)
	if cleaned == "." || filepath.IsAbs(cleaned) {
		return nil, fmt.Errorf("invalid file path: %q", rel)
	}

	file, err := d.root.Open(cleaned)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

// Close releases the directory handle.
func (d *Dir) Close() error {
	return d.root.Close()
}
