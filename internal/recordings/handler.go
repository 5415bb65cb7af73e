package recordings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/voicevault/backend/internal/middleware"
	"github.com/voicevault/backend/internal/models"
	"github.com/voicevault/backend/pkg/queue"
	"github.com/voicevault/backend/pkg/response"
	"github.com/voicevault/backend/pkg/storage"
)

const (
	// MaxUploadBytes caps uploaded recordings at 100MB.
	MaxUploadBytes = 100 * 1024 * 1024
	// DefaultPageSize is the recordings list page size.
	DefaultPageSize = 20
)

// wavMimeTypes are the accepted upload content types.
var wavMimeTypes = map[string]bool{
	"audio/wav":      true,
	"audio/x-wav":    true,
	"audio/wave":     true,
	"audio/vnd.wave": true,
}

// Store is the persistence surface the handlers need. *Repository implements it.
type Store interface {
	Create(ctx context.Context, rec *models.Recording) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Recording, error)
	Delete(ctx context.Context, id uuid.UUID) error
	VaultOwner(ctx context.Context, vaultID uuid.UUID) (uuid.UUID, error)
}

// Enqueuer hands finished uploads to the transcription queue.
type Enqueuer interface {
	EnqueueTranscription(ctx context.Context, payload queue.TranscribePayload) error
}

// Handler handles recording HTTP endpoints: upload, listing, status, deletion.
type Handler struct {
	repo      Store
	queue     Enqueuer
	s3        *storage.S3 // optional archive; nil disables download URLs
	uploadDir string
	logger    *zap.Logger
}

// NewHandler creates a recordings handler.
func NewHandler(repo Store, q Enqueuer, s3 *storage.S3, uploadDir string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, queue: q, s3: s3, uploadDir: uploadDir, logger: logger}
}

// Upload handles POST /recordings. Accepts a multipart WAV under "audio",
// stores it on disk, creates the row with a null transcription and enqueues the
// transcription job once the file write has completed. Anonymous uploads are
// allowed; vault assignment requires ownership.
func (h *Handler) Upload(c *gin.Context) {
	file, err := c.FormFile("audio")
	if err != nil {
		response.BadRequest(c, "audio file required")
		return
	}
	if file.Size == 0 {
		response.BadRequest(c, "audio file is empty")
		return
	}
	if file.Size > MaxUploadBytes {
		response.PayloadTooLarge(c, "audio file exceeds 100MB limit")
		return
	}
	contentType := file.Header.Get("Content-Type")
	if !wavMimeTypes[strings.ToLower(contentType)] && !strings.EqualFold(filepath.Ext(file.Filename), ".wav") {
		response.BadRequest(c, "only WAV uploads are supported")
		return
	}

	var userID *uuid.UUID
	if v, ok := c.Get(middleware.ContextUserID); ok {
		id := v.(uuid.UUID)
		userID = &id
	}

	var vaultID *uuid.UUID
	if raw := c.PostForm("vault_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "invalid vault_id")
			return
		}
		if userID == nil {
			response.Forbidden(c, "vault assignment requires authentication")
			return
		}
		owner, err := h.repo.VaultOwner(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				response.NotFound(c, "vault not found")
				return
			}
			h.logger.Error("load vault owner failed", zap.Error(err), zap.String("vault_id", id.String()))
			response.Internal(c, "failed to load vault")
			return
		}
		if owner != *userID {
			response.Forbidden(c, "not your vault")
			return
		}
		vaultID = &id
	}

	name := uuid.New().String() + ".wav"
	dst := filepath.Join(h.uploadDir, name)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		h.logger.Error("save upload failed", zap.Error(err), zap.String("path", dst))
		response.Internal(c, "failed to store audio file")
		return
	}

	fileName := file.Filename
	if fileName == "" {
		fileName = name
	}
	rec := &models.Recording{
		UserID:   userID,
		VaultID:  vaultID,
		FilePath: dst,
		FileName: fileName,
		FileSize: file.Size,
		MimeType: contentType,
	}
	if err := h.repo.Create(c.Request.Context(), rec); err != nil {
		_ = os.Remove(dst)
		h.logger.Error("create recording failed", zap.Error(err))
		response.Internal(c, "failed to create recording")
		return
	}

	if err := h.queue.EnqueueTranscription(c.Request.Context(), queue.TranscribePayload{RecordingID: rec.ID}); err != nil {
		// The row exists; transcription can be re-triggered later.
		h.logger.Error("enqueue transcription failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
	}

	response.Created(c, recordingView(rec))
}

// List handles GET /recordings. Returns the caller's recordings, newest first.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	limit := DefaultPageSize
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}

	list, err := h.repo.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err))
		response.Internal(c, "failed to list recordings")
		return
	}
	views := make([]gin.H, 0, len(list))
	for i := range list {
		views = append(views, recordingView(&list[i]))
	}
	response.OK(c, views)
}

// Get handles GET /recordings/:id. Includes the derived transcript status so a
// failed recording is never mistaken for one still transcribing.
func (h *Handler) Get(c *gin.Context) {
	rec := h.loadOwned(c)
	if rec == nil {
		return
	}
	response.OK(c, recordingView(rec))
}

// Retranscribe handles POST /recordings/:id/transcribe: an explicit re-run that
// starts a fresh job instance (e.g. after a terminal failure).
func (h *Handler) Retranscribe(c *gin.Context) {
	rec := h.loadOwned(c)
	if rec == nil {
		return
	}
	if rec.Transcription != nil {
		response.Conflict(c, "recording already transcribed")
		return
	}
	if err := h.queue.EnqueueTranscription(c.Request.Context(), queue.TranscribePayload{RecordingID: rec.ID}); err != nil {
		h.logger.Error("enqueue transcription failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		response.Internal(c, "failed to enqueue transcription")
		return
	}
	response.OK(c, gin.H{"status": models.TranscriptPending})
}

// Delete handles DELETE /recordings/:id. Removes the file first; the worker
// tolerates a missing file as a permanent decode failure.
func (h *Handler) Delete(c *gin.Context) {
	rec := h.loadOwned(c)
	if rec == nil {
		return
	}
	if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
		h.logger.Warn("remove recording file failed", zap.Error(err), zap.String("path", rec.FilePath))
	}
	if h.s3 != nil && rec.S3Key != "" {
		if err := h.s3.DeleteRecording(c.Request.Context(), rec.S3Key); err != nil {
			h.logger.Warn("delete archived object failed", zap.Error(err), zap.String("s3_key", rec.S3Key))
		}
	}
	if err := h.repo.Delete(c.Request.Context(), rec.ID); err != nil {
		h.logger.Error("delete recording failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		response.Internal(c, "failed to delete recording")
		return
	}
	response.NoContent(c)
}

// DownloadURL handles GET /recordings/:id/download-url. Presigns a GET against
// the archive bucket when the recording has been mirrored there.
func (h *Handler) DownloadURL(c *gin.Context) {
	rec := h.loadOwned(c)
	if rec == nil {
		return
	}
	if h.s3 == nil {
		response.ServiceUnavailable(c, "archive storage not configured")
		return
	}
	if rec.S3Key == "" {
		response.BadRequest(c, "recording not archived yet")
		return
	}
	expire := h.s3.PresignExpire()
	url, err := h.s3.PresignDownload(c.Request.Context(), rec.S3Key, expire)
	if err != nil {
		h.logger.Error("presign download failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		response.Internal(c, "failed to generate download URL")
		return
	}
	response.OK(c, gin.H{"download_url": url, "expires_in": int(expire.Seconds())})
}

// loadOwned fetches the recording and enforces ownership. Anonymous recordings
// are only reachable through the worker, not the API.
func (h *Handler) loadOwned(c *gin.Context) *models.Recording {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return nil
	}
	rec, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "recording not found")
		} else {
			h.logger.Error("get recording failed", zap.Error(err), zap.String("recording_id", id.String()))
			response.Internal(c, "failed to load recording")
		}
		return nil
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if rec.UserID == nil || *rec.UserID != userID {
		response.Forbidden(c, "not your recording")
		return nil
	}
	return rec
}

// recordingView is the API shape: the recording plus its derived transcript
// status and flat text.
func recordingView(rec *models.Recording) gin.H {
	view := gin.H{
		"recording":         rec,
		"transcript_status": rec.TranscriptStatus(),
	}
	if text := rec.FlatText(); text != nil {
		view["flat_text"] = *text
	}
	if rec.TranscriptError != "" {
		view["transcript_error"] = rec.TranscriptError
	}
	return view
}
