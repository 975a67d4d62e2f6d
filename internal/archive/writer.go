package archive

import (
	"archive/zip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sbinet/npyio/npy"
)

// Encode writes a as an uncompressed npz container, the layout numpy.savez produces.
func Encode(w io.Writer, a *Archive) error {
	n, c, s := a.Shape()
	for i, ep := range a.Epochs {
		if len(ep) != c {
			return fmt.Errorf("archive: epoch %d has %d channels, want %d", i, len(ep), c)
		}
		for j, ch := range ep {
			if len(ch) != s {
				return fmt.Errorf("archive: epoch %d channel %d has %d samples, want %d", i, j, len(ch), s)
			}
		}
	}

	labels := a.Labels
	if labels == nil {
		labels = make([]float64, n)
	}

	zw := zip.NewWriter(w)
	now := time.Now()

	create := func(name string) (io.Writer, error) {
		return zw.CreateHeader(&zip.FileHeader{Name: name + ".npy", Method: zip.Store, Modified: now})
	}

	xw, err := create(EntryX)
	if err != nil {
		return err
	}
	if err := writeHeader(xw, "<f8", []int{n, c, s}); err != nil {
		return err
	}
	row := make([]byte, 8*s)
	for _, ep := range a.Epochs {
		for _, ch := range ep {
			for k, v := range ch {
				binary.LittleEndian.PutUint64(row[8*k:], math.Float64bits(v))
			}
			if _, err := xw.Write(row); err != nil {
				return err
			}
		}
	}

	yw, err := create(EntryY)
	if err != nil {
		return err
	}
	if err := npy.Write(yw, labels); err != nil {
		return fmt.Errorf("archive: %s: %w", EntryY, err)
	}

	subject := a.Subject
	if subject == "" {
		subject = UnknownSubject
	}
	sw, err := create(EntrySubject)
	if err != nil {
		return err
	}
	encoded := encodeUTF32(subject)
	if err := writeHeader(sw, fmt.Sprintf("<U%d", len(encoded)/4), nil); err != nil {
		return err
	}
	if _, err := sw.Write(encoded); err != nil {
		return err
	}

	if a.SFreq > 0 {
		fw, err := create(EntrySFreq)
		if err != nil {
			return err
		}
		if err := npy.Write(fw, []float64{a.SFreq}); err != nil {
			return fmt.Errorf("archive: %s: %w", EntrySFreq, err)
		}
	}

	return zw.Close()
}

// WriteFile encodes a to path through a temp file in the same directory.
func WriteFile(path string, a *Archive) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, a); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
