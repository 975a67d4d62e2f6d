package egi

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/ekisa-team/modma/internal/eeg"
)

// Write encodes rec as a continuous float32 simple binary file. Samples are
// stored in microvolts; each distinct event code becomes an event channel
// that is 1 on the event's sample.
func Write(w io.Writer, rec *eeg.Recording, recordedAt time.Time) error {
	nCh := len(rec.Channels)
	nSamples := rec.NumSamples()
	if nCh == 0 || nCh > math.MaxInt16 {
		return fmt.Errorf("egi: cannot write %d channels", nCh)
	}

	var codes []string
	index := map[string]int{}
	for _, ev := range rec.Events {
		if _, ok := index[ev.Code]; !ok {
			index[ev.Code] = len(codes)
			codes = append(codes, ev.Code)
		}
	}

	bw := bufio.NewWriter(w)
	header := []any{
		int32(precisionFloat32),
		int16(recordedAt.Year()), int16(recordedAt.Month()), int16(recordedAt.Day()),
		int16(recordedAt.Hour()), int16(recordedAt.Minute()), int16(recordedAt.Second()),
		int32(recordedAt.Nanosecond() / int(time.Millisecond)),
		int16(rec.SFreq), int16(nCh), int16(0), int16(0), int16(0),
		int32(nSamples), int16(len(codes)),
	}
	for _, field := range header {
		if err := binary.Write(bw, binary.BigEndian, field); err != nil {
			return err
		}
	}
	for _, code := range codes {
		var buf [4]byte
		copy(buf[:], code)
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}

	marks := make([]map[int]bool, len(codes))
	for i := range marks {
		marks[i] = map[int]bool{}
	}
	for _, ev := range rec.Events {
		marks[index[ev.Code]][ev.Sample] = true
	}

	row := make([]byte, 4*(nCh+len(codes)))
	for s := 0; s < nSamples; s++ {
		for c := 0; c < nCh; c++ {
			binary.BigEndian.PutUint32(row[4*c:], math.Float32bits(float32(rec.Data[c][s]/defaultCalibration)))
		}
		for e := range codes {
			var v float32
			if marks[e][s] {
				v = 1
			}
			binary.BigEndian.PutUint32(row[4*(nCh+e):], math.Float32bits(v))
		}
		if _, err := bw.Write(row); err != nil {
			return err
		}
	}

	return bw.Flush()
}
