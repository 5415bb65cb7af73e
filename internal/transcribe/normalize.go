package transcribe

import (
	"strings"

	"github.com/voicevault/backend/internal/models"
)

// Normalize converts engine-native segments into the canonical transcript.
// Segment order and timing pass through unchanged; text is re-encoded to valid
// UTF-8 with replacement characters so one corrupt segment cannot lose the rest
// of the transcript. Pure function, no I/O.
func Normalize(raw []RawSegment) models.Transcript {
	transcript := make(models.Transcript, 0, len(raw))
	for _, s := range raw {
		transcript = append(transcript, models.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  strings.ToValidUTF8(s.Text, "�"),
		})
	}
	return transcript
}
