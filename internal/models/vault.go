package models

import (
	"time"

	"github.com/google/uuid"
)

// Vault is a user-defined named collection of recordings.
type Vault struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Derived fields, populated by handlers when requested; never stored.
	RecordingCount *int    `json:"recording_count,omitempty"`
	FullTranscript *string `json:"full_transcript,omitempty"`
}
