package recordings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voicevault/backend/internal/models"
)

const recordingColumns = `id, user_id, vault_id, file_path, file_name, file_size, mime_type, duration,
	transcription, COALESCE(transcript_error,''), COALESCE(s3_key,''), created_at, updated_at`

// Repository handles recording persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	var transcription []byte
	err := row.Scan(&rec.ID, &rec.UserID, &rec.VaultID, &rec.FilePath, &rec.FileName, &rec.FileSize,
		&rec.MimeType, &rec.Duration, &transcription, &rec.TranscriptError, &rec.S3Key, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if transcription != nil {
		if err := json.Unmarshal(transcription, &rec.Transcription); err != nil {
			return nil, fmt.Errorf("unmarshal transcription: %w", err)
		}
	}
	return &rec, nil
}

// Create inserts a new recording with a null transcription.
func (r *Repository) Create(ctx context.Context, rec *models.Recording) error {
	const q = `INSERT INTO recordings (id, user_id, vault_id, file_path, file_name, file_size, mime_type, duration)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, rec.UserID, rec.VaultID, rec.FilePath, rec.FileName, rec.FileSize, rec.MimeType, rec.Duration).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

// GetByID returns a recording by ID, or pgx.ErrNoRows.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE id = $1`
	return scanRecording(r.pool.QueryRow(ctx, q, id))
}

// ListByUser returns a user's recordings, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

// ListByVault returns a vault's recordings ordered by creation time ascending,
// the order the transcript aggregation depends on.
func (r *Repository) ListByVault(ctx context.Context, vaultID uuid.UUID) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE vault_id = $1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, q, vaultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

// UpdateTranscription writes the normalized transcript as one atomic update and
// clears any previous failure marker. The transcript is written whole or not at all.
func (r *Repository) UpdateTranscription(ctx context.Context, id uuid.UUID, transcript models.Transcript) error {
	body, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("marshal transcription: %w", err)
	}
	const q = `UPDATE recordings SET transcription = $1, transcript_error = NULL, updated_at = NOW() WHERE id = $2`
	_, err = r.pool.Exec(ctx, q, body, id)
	return err
}

// MarkTranscriptionFailed records a terminal failure. The transcription stays null.
func (r *Repository) MarkTranscriptionFailed(ctx context.Context, id uuid.UUID, reason string) error {
	const q = `UPDATE recordings SET transcript_error = $1, updated_at = NOW() WHERE id = $2 AND transcription IS NULL`
	_, err := r.pool.Exec(ctx, q, reason, id)
	return err
}

// UpdateS3Key stores the archive object key after a successful S3 upload.
func (r *Repository) UpdateS3Key(ctx context.Context, id uuid.UUID, key string) error {
	const q = `UPDATE recordings SET s3_key = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, key, id)
	return err
}

// VaultOwner returns the owning user of a vault, or pgx.ErrNoRows. Used by the
// upload path to enforce that recordings only land in the caller's own vaults.
func (r *Repository) VaultOwner(ctx context.Context, vaultID uuid.UUID) (uuid.UUID, error) {
	const q = `SELECT user_id FROM vaults WHERE id = $1`
	var owner uuid.UUID
	err := r.pool.QueryRow(ctx, q, vaultID).Scan(&owner)
	return owner, err
}

// Delete removes a recording row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM recordings WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}
