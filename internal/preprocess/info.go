package preprocess

import "strings"

// Info summarizes what preprocessing did to a file. Numeric fields are nil
// when the step that fills them did not run.
type Info struct {
	File           string   `json:"file"`
	// ChannelsBefore counts the EEG data channels of the recording. Event
	// channels are decoded into events and not included.
	ChannelsBefore *int     `json:"channels_before"`
	ChannelsAfter  *int     `json:"channels_after"`
	SamplingRate   *float64 `json:"sampling_rate"`
	EpochCount     *int     `json:"epoch_count"`
	Message        string   `json:"message"`
}

// note appends a message fragment followed by the " | " separator.
func (i *Info) note(msg string) {
	var sb strings.Builder
	sb.WriteString(i.Message)
	sb.WriteString(msg)
	sb.WriteString(" | ")
	i.Message = sb.String()
}

func ptr[T any](v T) *T {
	return &v
}
