// Package egi decodes EGI "simple binary" (.raw) recordings.
//
// Only continuous (unsegmented) files are supported. All header fields and
// samples are big-endian.
package egi

import (
	"bufio"
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/ekisa-team/modma/internal/eeg"
)

// Error definitions for the egi package.
var (
	ErrInvalidHeader = errors.New("egi: invalid simple binary header")
	ErrSegmented     = errors.New("egi: segmented files are not supported")
	ErrTruncated     = errors.New("egi: truncated data")
)

// Precision bits of the version field.
const (
	precisionInt16   = 2
	precisionFloat32 = 4
	precisionFloat64 = 6
)

// defaultCalibration converts microvolts to volts when the header carries no range.
const defaultCalibration = 1e-6

// Header is the fixed part of a simple binary file.
type Header struct {
	Version     int32
	Year        int16
	Month       int16
	Day         int16
	Hour        int16
	Minute      int16
	Second      int16
	Millisecond int32
	SampRate    int16
	NChannels   int16
	Gain        int16
	Bits        int16
	ValueRange  int16

	NSamples   int32
	NEvents    int16
	EventCodes []string
}

// Segmented reports whether the file stores segmented data.
func (h *Header) Segmented() bool {
	return h.Version&1 != 0
}

// Precision returns the sample encoding bits (2, 4 or 6).
func (h *Header) Precision() int32 {
	return h.Version & 6
}

// Calibration returns the factor that converts stored values to volts.
func (h *Header) Calibration() float64 {
	if h.ValueRange != 0 && h.Bits != 0 {
		return float64(h.ValueRange) / math.Pow(2, float64(h.Bits))
	}

	return defaultCalibration
}

// ReadFile decodes the recording at path. The sample count in the header
// is checked against the file size before any samples are read.
func ReadFile(path string) (*eeg.Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return decode(bufio.NewReader(f), info.Size())
}

// Read decodes a recording from r. Sample buffers grow as rows arrive.
func Read(r io.Reader) (*eeg.Recording, error) {
	return decode(bufio.NewReader(r), -1)
}

// headerSize is the byte length of the fixed header fields.
const headerSize = 36

// maxPrealloc caps the samples reserved up front when the size is not known.
const maxPrealloc = 1 << 16

func decode(br *bufio.Reader, fileSize int64) (*eeg.Recording, error) {
	hdr, err := ReadHeader(br)
	if err != nil {
		return nil, err
	}

	nCh := int(hdr.NChannels)
	nEv := int(hdr.NEvents)
	nSamples := int(hdr.NSamples)
	rowWidth := nCh + nEv

	size, decodeSample, err := sampleCodec(hdr.Precision())
	if err != nil {
		return nil, err
	}

	prealloc := min(nSamples, maxPrealloc)
	if fileSize >= 0 {
		have := fileSize - headerSize - 4*int64(nEv)
		need := int64(nSamples) * int64(rowWidth) * int64(size)
		if have < need {
			return nil, fmt.Errorf("%w: header declares %d samples (%d bytes), file holds %d",
				ErrTruncated, nSamples, need, max(have, 0))
		}
		prealloc = nSamples
	}

	cal := hdr.Calibration()
	data := make([][]float64, nCh)
	for i := range data {
		data[i] = make([]float64, 0, prealloc)
	}
	events := make([][]float64, nEv)
	for i := range events {
		events[i] = make([]float64, 0, prealloc)
	}

	row := make([]byte, rowWidth*size)
	for s := 0; s < nSamples; s++ {
		if _, err := io.ReadFull(br, row); err != nil {
			return nil, fmt.Errorf("%w at sample %d of %d: %v", ErrTruncated, s, nSamples, err)
		}
		for c := 0; c < rowWidth; c++ {
			v := decodeSample(row[c*size:])
			if c < nCh {
				data[c] = append(data[c], v*cal)
			} else {
				events[c-nCh] = append(events[c-nCh], v)
			}
		}
	}

	channels := make([]string, nCh)
	for i := range channels {
		channels[i] = eeg.ChannelName(i + 1)
	}

	return &eeg.Recording{
		Channels: channels,
		SFreq:    float64(hdr.SampRate),
		Data:     data,
		Events:   findOnsets(hdr.EventCodes, events),
	}, nil
}

// ReadHeader decodes the header and event code table.
func ReadHeader(r io.Reader) (*Header, error) {
	var hdr Header

	fixed := []any{
		&hdr.Version,
		&hdr.Year, &hdr.Month, &hdr.Day, &hdr.Hour, &hdr.Minute, &hdr.Second,
		&hdr.Millisecond,
		&hdr.SampRate, &hdr.NChannels, &hdr.Gain, &hdr.Bits, &hdr.ValueRange,
	}
	for _, field := range fixed {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
		}
	}

	if hdr.Version <= 0 || hdr.Version > 7 {
		return nil, fmt.Errorf("%w: version %d", ErrInvalidHeader, hdr.Version)
	}
	if hdr.Segmented() {
		return nil, ErrSegmented
	}
	if hdr.Precision() == 0 {
		return nil, fmt.Errorf("%w: undefined precision", ErrInvalidHeader)
	}
	if hdr.SampRate <= 0 || hdr.NChannels <= 0 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidHeader, hdr.NChannels, hdr.SampRate)
	}

	if err := binary.Read(r, binary.BigEndian, &hdr.NSamples); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if err := binary.Read(r, binary.BigEndian, &hdr.NEvents); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if hdr.NSamples < 0 || hdr.NEvents < 0 {
		return nil, fmt.Errorf("%w: negative sizes", ErrInvalidHeader)
	}

	hdr.EventCodes = make([]string, hdr.NEvents)
	code := make([]byte, 4)
	for i := range hdr.EventCodes {
		if _, err := io.ReadFull(r, code); err != nil {
			return nil, fmt.Errorf("%w: event code %d: %v", ErrInvalidHeader, i, err)
		}
		hdr.EventCodes[i] = strings.TrimRight(string(code), "\x00 ")
	}

	return &hdr, nil
}

// sampleCodec returns the byte width and decoder for a precision.
func sampleCodec(precision int32) (int, func([]byte) float64, error) {
	switch precision {
	case precisionInt16:
		return 2, func(b []byte) float64 {
			return float64(int16(binary.BigEndian.Uint16(b)))
		}, nil
	case precisionFloat32:
		return 4, func(b []byte) float64 {
			return float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
		}, nil
	case precisionFloat64:
		return 8, func(b []byte) float64 {
			return math.Float64frombits(binary.BigEndian.Uint64(b))
		}, nil
	}

	return 0, nil, fmt.Errorf("%w: precision %d", ErrInvalidHeader, precision)
}

// findOnsets returns one event per rising edge of each event channel,
// ordered by sample.
func findOnsets(codes []string, channels [][]float64) []eeg.Event {
	var out []eeg.Event
	for i, ch := range channels {
		prev := 0.0
		for s, v := range ch {
			if v != 0 && prev == 0 {
				out = append(out, eeg.Event{Sample: s, Code: codes[i]})
			}
			prev = v
		}
	}

	slices.SortStableFunc(out, func(a, b eeg.Event) int {
		return cmp.Compare(a.Sample, b.Sample)
	})

	return out
}
