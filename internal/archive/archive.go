// Package archive reads and writes epoch archives: NumPy .npz files holding
// X (epochs x channels x samples), y, subject and sfreq.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Entry names inside the archive.
const (
	EntryX       = "X"
	EntryY       = "y"
	EntrySubject = "subject"
	EntrySFreq   = "sfreq"
)

// UnknownSubject is reported when an archive carries no readable subject.
const UnknownSubject = "unknown"

// ErrMissingEntry is returned when a required entry is absent.
var ErrMissingEntry = errors.New("archive: missing entry")

// Archive is the decoded content of an epoch archive.
type Archive struct {
	Subject string
	// SFreq is zero when the archive does not record it.
	SFreq  float64
	Epochs [][][]float64
	Labels []float64
}

// Shape returns (epochs, channels, samples).
func (a *Archive) Shape() (int, int, int) {
	if len(a.Epochs) == 0 || len(a.Epochs[0]) == 0 {
		return len(a.Epochs), 0, 0
	}

	return len(a.Epochs), len(a.Epochs[0]), len(a.Epochs[0][0])
}

// FileName returns the archive name for a subject.
func FileName(subject string) string {
	return subject + "_preprocessed.npz"
}

// SubjectFromPath returns the base name of path without its extension.
func SubjectFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadFile decodes the archive at path.
func ReadFile(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return Decode(f, info.Size())
}

// Decode reads an archive from a zip container.
func Decode(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("archive: not a npz file: %w", err)
	}

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[strings.TrimSuffix(f.Name, ".npy")] = f
	}

	xf, ok := entries[EntryX]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingEntry, EntryX)
	}

	epochs, err := readEpochs(xf)
	if err != nil {
		return nil, fmt.Errorf("archive: %s: %w", EntryX, err)
	}

	a := &Archive{Epochs: epochs, Subject: UnknownSubject}

	if f, ok := entries[EntryY]; ok {
		if a.Labels, err = readFloats(f); err != nil {
			return nil, fmt.Errorf("archive: %s: %w", EntryY, err)
		}
	}

	if f, ok := entries[EntrySFreq]; ok {
		v, err := readFloats(f)
		if err != nil {
			return nil, fmt.Errorf("archive: %s: %w", EntrySFreq, err)
		}
		if len(v) > 0 {
			a.SFreq = v[0]
		}
	}

	if f, ok := entries[EntrySubject]; ok {
		if s := readSubject(f); s != "" {
			a.Subject = s
		}
	}

	return a, nil
}
