package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptStatusDerivation(t *testing.T) {
	rec := &Recording{}
	assert.Equal(t, TranscriptPending, rec.TranscriptStatus())

	rec.TranscriptError = "audio decode failed: not a wav"
	assert.Equal(t, TranscriptFailed, rec.TranscriptStatus())

	// A persisted transcript wins even if an old error is still set; a failed
	// job never writes the transcript, so this only happens after a re-run.
	rec.Transcription = Transcript{{Start: 0, End: 1, Text: "hello"}}
	assert.Equal(t, TranscriptDone, rec.TranscriptStatus())
}

func TestTranscriptStatusEmptySegmentListIsDone(t *testing.T) {
	// Silence produces an empty segment list, which is still a transcript.
	rec := &Recording{Transcription: Transcript{}}
	assert.Equal(t, TranscriptDone, rec.TranscriptStatus())
}

func TestRecordingFlatText(t *testing.T) {
	rec := &Recording{}
	assert.Nil(t, rec.FlatText())

	rec.Transcription = Transcript{
		{Start: 0, End: 1.5, Text: " Hello"},
		{Start: 1.5, End: 2, Text: ""},
		{Start: 2, End: 3.2, Text: "world. "},
	}
	text := rec.FlatText()
	require.NotNil(t, text)
	assert.Equal(t, "Hello world.", *text)
}

func TestTranscriptFlatTextEmpty(t *testing.T) {
	assert.Equal(t, "", Transcript{}.FlatText())
	assert.Equal(t, "", Transcript{{Text: "   "}}.FlatText())
}
