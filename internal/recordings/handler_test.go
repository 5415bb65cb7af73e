package recordings

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicevault/backend/internal/middleware"
	"github.com/voicevault/backend/internal/models"
	"github.com/voicevault/backend/pkg/queue"
)

type fakeStore struct {
	vaultOwners map[uuid.UUID]uuid.UUID
	created     []*models.Recording
}

func (s *fakeStore) Create(_ context.Context, rec *models.Recording) error {
	rec.ID = uuid.New()
	s.created = append(s.created, rec)
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, _ uuid.UUID) (*models.Recording, error) {
	return nil, pgx.ErrNoRows
}

func (s *fakeStore) ListByUser(_ context.Context, _ uuid.UUID, _, _ int) ([]models.Recording, error) {
	return nil, nil
}

func (s *fakeStore) Delete(_ context.Context, _ uuid.UUID) error { return nil }

func (s *fakeStore) VaultOwner(_ context.Context, vaultID uuid.UUID) (uuid.UUID, error) {
	owner, ok := s.vaultOwners[vaultID]
	if !ok {
		return uuid.Nil, pgx.ErrNoRows
	}
	return owner, nil
}

type fakeEnqueuer struct {
	payloads []queue.TranscribePayload
}

func (e *fakeEnqueuer) EnqueueTranscription(_ context.Context, p queue.TranscribePayload) error {
	e.payloads = append(e.payloads, p)
	return nil
}

// uploadRouter registers the upload route the way cmd/server does, with the
// caller identity injected instead of a real JWT.
func uploadRouter(h *Handler, userID *uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/recordings", func(c *gin.Context) {
		if userID != nil {
			c.Set(middleware.ContextUserID, *userID)
		}
	}, h.Upload)
	return r
}

func uploadRequest(t *testing.T, vaultID string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("audio", "clip.wav")
	require.NoError(t, err)
	_, err = fw.Write([]byte("RIFF0000WAVEfmt "))
	require.NoError(t, err)
	if vaultID != "" {
		require.NoError(t, w.WriteField("vault_id", vaultID))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/recordings", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadIntoOwnVault(t *testing.T) {
	userID := uuid.New()
	vaultID := uuid.New()
	store := &fakeStore{vaultOwners: map[uuid.UUID]uuid.UUID{vaultID: userID}}
	q := &fakeEnqueuer{}
	h := NewHandler(store, q, nil, t.TempDir(), nil)

	w := httptest.NewRecorder()
	uploadRouter(h, &userID).ServeHTTP(w, uploadRequest(t, vaultID.String()))

	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, store.created, 1)
	require.NotNil(t, store.created[0].VaultID)
	assert.Equal(t, vaultID, *store.created[0].VaultID)
	require.Len(t, q.payloads, 1)
	assert.Equal(t, store.created[0].ID, q.payloads[0].RecordingID)
}

func TestUploadIntoOtherUsersVaultForbidden(t *testing.T) {
	userID := uuid.New()
	vaultID := uuid.New()
	store := &fakeStore{vaultOwners: map[uuid.UUID]uuid.UUID{vaultID: uuid.New()}}
	q := &fakeEnqueuer{}
	h := NewHandler(store, q, nil, t.TempDir(), nil)

	w := httptest.NewRecorder()
	uploadRouter(h, &userID).ServeHTTP(w, uploadRequest(t, vaultID.String()))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, store.created, "no row for a rejected upload")
	assert.Empty(t, q.payloads, "no job for a rejected upload")
}

func TestUploadIntoMissingVaultNotFound(t *testing.T) {
	userID := uuid.New()
	store := &fakeStore{vaultOwners: map[uuid.UUID]uuid.UUID{}}
	h := NewHandler(store, &fakeEnqueuer{}, nil, t.TempDir(), nil)

	w := httptest.NewRecorder()
	uploadRouter(h, &userID).ServeHTTP(w, uploadRequest(t, uuid.New().String()))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, store.created)
}

func TestUploadAnonymousVaultAssignmentForbidden(t *testing.T) {
	store := &fakeStore{vaultOwners: map[uuid.UUID]uuid.UUID{}}
	h := NewHandler(store, &fakeEnqueuer{}, nil, t.TempDir(), nil)

	w := httptest.NewRecorder()
	uploadRouter(h, nil).ServeHTTP(w, uploadRequest(t, uuid.New().String()))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, store.created)
}

func TestUploadAnonymousWithoutVault(t *testing.T) {
	store := &fakeStore{}
	q := &fakeEnqueuer{}
	h := NewHandler(store, q, nil, t.TempDir(), nil)

	w := httptest.NewRecorder()
	uploadRouter(h, nil).ServeHTTP(w, uploadRequest(t, ""))

	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, store.created, 1)
	assert.Nil(t, store.created[0].UserID)
	assert.Nil(t, store.created[0].VaultID)
	require.Len(t, q.payloads, 1)
}
