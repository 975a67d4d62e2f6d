package preprocess

import (
	"github.com/ekisa-team/modma/internal/eeg"
)

// NormalizeChannels drops the reference and any non-layout channel, adds a
// zero channel for every missing electrode and returns the recording in
// E1..E128 order. It also returns the names that were zero-filled.
func NormalizeChannels(rec *eeg.Recording, reference string) (*eeg.Recording, []string) {
	layout := eeg.LayoutChannels()
	n := rec.NumSamples()

	byName := make(map[string][]float64, len(rec.Channels))
	for i, name := range rec.Channels {
		if name == reference {
			continue
		}
		byName[name] = rec.Data[i]
	}

	var missing []string
	data := make([][]float64, len(layout))
	for i, name := range layout {
		if row, ok := byName[name]; ok {
			data[i] = row
			continue
		}
		data[i] = make([]float64, n)
		missing = append(missing, name)
	}

	return &eeg.Recording{
		Channels: layout,
		SFreq:    rec.SFreq,
		Data:     data,
		Events:   rec.Events,
	}, missing
}
