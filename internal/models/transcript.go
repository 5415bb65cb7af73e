package models

import "strings"

// Segment is one timed span of transcribed speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the canonical stored transcript: an ordered segment list,
// persisted as JSON so consumers can address timing. Flat text is derived on read.
type Transcript []Segment

// FlatText reduces the transcript to a single string: segment texts are trimmed
// and joined with single spaces, in segment order. Empty segments contribute nothing.
func (t Transcript) FlatText() string {
	parts := make([]string, 0, len(t))
	for _, s := range t {
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
