// Package fsutil opens user-supplied paths without following them out of
// their parent directory.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// scopedFile closes the root it was opened from together with the file.
type scopedFile struct {
	*os.File
	root *os.Root
}

func (f *scopedFile) Close() error {
	return errors.Join(f.File.Close(), f.root.Close())
}

// OpenScoped opens path through an os.Root at its directory, so a final
// component that is a symlink cannot escape that directory.
func OpenScoped(path string) (io.ReadCloser, error) {
	cleaned := filepath.Clean(path)
	base := filepath.Base(cleaned)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid file path: %q", path)
	}

	root, err := os.OpenRoot(filepath.Dir(cleaned))
	if err != nil {
		return nil, err
	}
	f, err := root.Open(base)
	if err != nil {
		_ = root.Close()
		return nil, err
	}
	return &scopedFile{File: f, root: root}, nil
}
