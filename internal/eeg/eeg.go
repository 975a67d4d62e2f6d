// Package eeg holds the in-memory shapes of recordings and epochs.
package eeg

import (
	"fmt"
	"strconv"
)

// LayoutSize is the number of scalp electrodes kept by the pipeline.
const LayoutSize = 128

// Event marks a sample at which a trigger code fired.
type Event struct {
	Sample int
	Code   string
}

// Recording is a continuous multi-channel recording in volts.
type Recording struct {
	Channels []string
	SFreq    float64
	Data     [][]float64 // [channel][sample]
	Events   []Event
}

// NumSamples returns the sample count of the recording.
func (r *Recording) NumSamples() int {
	if len(r.Data) == 0 {
		return 0
	}

	return len(r.Data[0])
}

// ChannelIndex returns the row of the named channel, or -1.
func (r *Recording) ChannelIndex(name string) int {
	for i, ch := range r.Channels {
		if ch == name {
			return i
		}
	}

	return -1
}

// Epochs is a stack of equal-length windows.
type Epochs struct {
	Channels []string
	SFreq    float64
	Data     [][][]float64 // [epoch][channel][sample]
}

// Shape returns (epochs, channels, samples).
func (e *Epochs) Shape() (int, int, int) {
	if len(e.Data) == 0 {
		return 0, len(e.Channels), 0
	}
	if len(e.Data[0]) == 0 {
		return len(e.Data), 0, 0
	}

	return len(e.Data), len(e.Data[0]), len(e.Data[0][0])
}

// Validate checks that every epoch has the same channels x samples shape.
func (e *Epochs) Validate() error {
	n, c, s := e.Shape()
	for i := 0; i < n; i++ {
		if len(e.Data[i]) != c {
			return fmt.Errorf("epoch %d has %d channels, want %d", i, len(e.Data[i]), c)
		}
		for j := range e.Data[i] {
			if len(e.Data[i][j]) != s {
				return fmt.Errorf("epoch %d channel %d has %d samples, want %d", i, j, len(e.Data[i][j]), s)
			}
		}
	}

	return nil
}

// LayoutChannels returns E1..E128, the HydroCel 129 net without its vertex reference.
func LayoutChannels() []string {
	names := make([]string, LayoutSize)
	for i := range names {
		names[i] = ChannelName(i + 1)
	}

	return names
}

// ChannelName returns the EGI name of a 1-based electrode number.
func ChannelName(n int) string {
	return "E" + strconv.Itoa(n)
}
