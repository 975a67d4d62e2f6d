package preprocess

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ekisa-team/modma/internal/eeg"
)

// Reasons the whole recording is used as a single epoch.
var (
	errNoCues       = errors.New("no cue events found")
	errNoValidEpoch = errors.New("no cue window fits inside the recording")
)

// EpochWindow cuts baseline-corrected windows around events whose code
// contains marker (case-insensitive). The window spans tmin..tmax seconds
// inclusive; the baseline is the mean of the samples at or before the event.
func EpochWindow(rec *eeg.Recording, marker string, tmin, tmax float64) (*eeg.Epochs, error) {
	if tmin > 0 || tmax <= 0 || tmin >= tmax {
		return nil, fmt.Errorf("invalid epoch window %.3f..%.3f s", tmin, tmax)
	}

	marker = strings.ToLower(marker)
	var cues []eeg.Event
	for _, ev := range rec.Events {
		if strings.Contains(strings.ToLower(ev.Code), marker) {
			cues = append(cues, ev)
		}
	}
	if len(cues) == 0 {
		return nil, errNoCues
	}

	seen := make(map[int]bool, len(cues))
	for _, ev := range cues {
		if seen[ev.Sample] {
			return nil, fmt.Errorf("event time samples were not unique (sample %d)", ev.Sample)
		}
		seen[ev.Sample] = true
	}

	start := int(math.RoundToEven(tmin * rec.SFreq))
	stop := int(math.RoundToEven(tmax * rec.SFreq))
	width := stop - start + 1
	baseline := -start + 1
	n := rec.NumSamples()

	var data [][][]float64
	for _, ev := range cues {
		first := ev.Sample + start
		if first < 0 || ev.Sample+stop >= n {
			continue
		}

		epoch := make([][]float64, len(rec.Data))
		for c, row := range rec.Data {
			window := make([]float64, width)
			copy(window, row[first:first+width])

			var mean float64
			for _, v := range window[:baseline] {
				mean += v
			}
			mean /= float64(baseline)
			for i := range window {
				window[i] -= mean
			}
			epoch[c] = window
		}
		data = append(data, epoch)
	}

	if len(data) == 0 {
		return nil, errNoValidEpoch
	}

	return &eeg.Epochs{Channels: rec.Channels, SFreq: rec.SFreq, Data: data}, nil
}

// WholeRecording wraps the recording as one epoch of shape (1, channels, samples).
func WholeRecording(rec *eeg.Recording) *eeg.Epochs {
	return &eeg.Epochs{
		Channels: rec.Channels,
		SFreq:    rec.SFreq,
		Data:     [][][]float64{rec.Data},
	}
}
