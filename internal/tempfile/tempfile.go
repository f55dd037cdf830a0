// Package tempfile hands out scoped scratch files for upload assembly. A
// scratch file lives exactly as long as the operation that acquired it,
// unless the operation preserves it for promotion.
package tempfile

import (
	"fmt"
	"os"
)

type Factory struct {
	dir    string
	prefix string
}

func NewFactory(dir, prefix string) *Factory {
	return &Factory{dir: dir, prefix: prefix}
}

func (f *Factory) Acquire() (*TempFile, error) {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}

	file, err := os.CreateTemp(f.dir, f.prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}

	path := file.Name()
	if err := file.Close(); err != nil {
		os.Remove(path)
		return nil, err
	}

	return &TempFile{path: path}, nil
}

type TempFile struct {
	path     string
	released bool
}

func (t *TempFile) Path() string {
	return t.path
}

// Release deletes the file. Calling it again, or after Preserve, is a no-op,
// so it is safe to defer unconditionally.
func (t *TempFile) Release() error {
	if t.released {
		return nil
	}
	t.released = true

	err := os.Remove(t.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Preserve transfers ownership of the file to the caller and returns its
// path. A deferred Release after Preserve leaves the file in place.
func (t *TempFile) Preserve() string {
	t.released = true
	return t.path
}
