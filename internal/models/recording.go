package models

import (
	"time"

	"github.com/google/uuid"
)

// TranscriptStatus is the observable transcription state of a recording.
type TranscriptStatus string

const (
	// TranscriptPending means no transcript yet: the job has not run or is in flight.
	TranscriptPending TranscriptStatus = "pending"
	// TranscriptDone means the transcript has been persisted.
	TranscriptDone TranscriptStatus = "done"
	// TranscriptFailed is terminal: the job gave up and the transcript stays null.
	TranscriptFailed TranscriptStatus = "failed"
)

// Recording is one uploaded audio file plus its transcription state.
// Transcription stays nil until the transcription job succeeds and is then
// replaced atomically as a whole value. A failed job leaves it nil and sets
// TranscriptError instead.
type Recording struct {
	ID              uuid.UUID  `json:"id"`
	UserID          *uuid.UUID `json:"user_id,omitempty"`
	VaultID         *uuid.UUID `json:"vault_id,omitempty"`
	FilePath        string     `json:"-"`
	FileName        string     `json:"file_name"`
	FileSize        int64      `json:"file_size"`
	MimeType        string     `json:"mime_type"`
	Duration        *int       `json:"duration,omitempty"`
	Transcription   Transcript `json:"transcription,omitempty"`
	TranscriptError string     `json:"transcript_error,omitempty"`
	S3Key           string     `json:"s3_key,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TranscriptStatus derives the transcription state. Done and failed are mutually
// exclusive because a failed job never writes the transcript.
func (r *Recording) TranscriptStatus() TranscriptStatus {
	switch {
	case r.Transcription != nil:
		return TranscriptDone
	case r.TranscriptError != "":
		return TranscriptFailed
	default:
		return TranscriptPending
	}
}

// FlatText returns the transcript reduced to one string, or nil when no
// transcript exists yet.
func (r *Recording) FlatText() *string {
	if r.Transcription == nil {
		return nil
	}
	text := r.Transcription.FlatText()
	return &text
}
