package vaults

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voicevault/backend/internal/models"
)

// Repository handles vault persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a vaults repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new vault.
func (r *Repository) Create(ctx context.Context, v *models.Vault) error {
	const q = `INSERT INTO vaults (id, user_id, name) VALUES (gen_random_uuid(), $1, $2)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, v.UserID, v.Name).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
}

// GetByID returns a vault by ID, or pgx.ErrNoRows.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Vault, error) {
	const q = `SELECT id, user_id, name, created_at, updated_at FROM vaults WHERE id = $1`
	var v models.Vault
	err := r.pool.QueryRow(ctx, q, id).Scan(&v.ID, &v.UserID, &v.Name, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListByUser returns a user's vaults, newest first, each with its recording count.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Vault, error) {
	const q = `SELECT v.id, v.user_id, v.name, v.created_at, v.updated_at,
		(SELECT COUNT(*) FROM recordings rec WHERE rec.vault_id = v.id)
		FROM vaults v WHERE v.user_id = $1 ORDER BY v.created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Vault
	for rows.Next() {
		var v models.Vault
		var count int
		if err := rows.Scan(&v.ID, &v.UserID, &v.Name, &v.CreatedAt, &v.UpdatedAt, &count); err != nil {
			return nil, err
		}
		v.RecordingCount = &count
		list = append(list, v)
	}
	return list, rows.Err()
}

// Rename updates the vault name.
func (r *Repository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	const q = `UPDATE vaults SET name = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, name, id)
	return err
}

// Delete removes a vault. Recordings keep their rows; the schema sets their
// vault reference to NULL.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM vaults WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}
