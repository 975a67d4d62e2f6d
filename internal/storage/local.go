package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local implements FileStore on a directory of the local filesystem.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}

	return &Local{root: abs}, nil
}

// Root returns the absolute root directory.
func (l *Local) Root() string {
	return l.root
}

// Path returns the filesystem path for a storage path.
func (l *Local) Path(path string) string {
	return filepath.Join(l.root, filepath.FromSlash(path))
}

// Read opens the named file for reading.
func (l *Local) Read(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(l.Path(path))
}

// Write returns a writer backed by a temp file in the target directory.
// Close renames it into place, so readers never see a partial file.
func (l *Local) Write(_ context.Context, path string) (io.WriteCloser, error) {
	full := l.Path(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), "."+filepath.Base(full)+".*.part")
	if err != nil {
		return nil, err
	}

	return &atomicWriter{File: tmp, target: full}, nil
}

// Delete removes the named file.
func (l *Local) Delete(_ context.Context, path string) error {
	err := os.Remove(l.Path(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

// Exists reports whether the named file exists.
func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(l.Path(path))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// atomicWriter writes to a temp file and renames it on Close.
type atomicWriter struct {
	*os.File
	target string
	closed bool
}

// Close flushes the temp file and moves it to the target path.
func (w *atomicWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.File.Sync(); err != nil {
		_ = w.File.Close()
		_ = os.Remove(w.File.Name())
		return err
	}
	if err := w.File.Close(); err != nil {
		_ = os.Remove(w.File.Name())
		return err
	}

	if err := os.Rename(w.File.Name(), w.target); err != nil {
		_ = os.Remove(w.File.Name())
		return err
	}

	return nil
}

// Abort discards the temp file without touching the target.
func (w *atomicWriter) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true

	_ = w.File.Close()
	return os.Remove(w.File.Name())
}

var _ FileStore = (*Local)(nil)
