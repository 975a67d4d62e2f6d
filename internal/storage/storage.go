// Package storage abstracts where model artifacts and pipeline files live.
// Local disk backs the models, uploads and processed directories; S3 backs
// artifact sources hosted in a bucket.
package storage

import (
	"context"
	"io"
)

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file. Missing files yield an error wrapping os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing. Data becomes visible on Close.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Missing files are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// Save copies r into path on store and returns the number of bytes written.
func Save(ctx context.Context, store FileStore, path string, r io.Reader) (int64, error) {
	w, err := store.Write(ctx, path)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(w, r)
	if err != nil {
		if a, ok := w.(interface{ Abort() error }); ok {
			_ = a.Abort()
		} else {
			_ = w.Close()
		}
		return n, err
	}

	return n, w.Close()
}
