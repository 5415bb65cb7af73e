package vaults

import (
	"strings"

	"github.com/voicevault/backend/internal/models"
)

// FullTranscript concatenates the flat text of each recording, in the given
// order, joined with a blank line. Recordings without a transcript (or with an
// empty one) are skipped entirely and leave no separator behind. Pure read
// projection: callers recompute it on every request, nothing is cached.
func FullTranscript(recordings []models.Recording) string {
	parts := make([]string, 0, len(recordings))
	for _, rec := range recordings {
		if rec.Transcription == nil {
			continue
		}
		if text := rec.Transcription.FlatText(); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}
