package vaults

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/voicevault/backend/internal/middleware"
	"github.com/voicevault/backend/internal/models"
	"github.com/voicevault/backend/internal/recordings"
	"github.com/voicevault/backend/pkg/response"
)

// VaultRequest is the body for creating or renaming a vault.
type VaultRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

// ShowResponse is the vault detail payload: the vault with derived fields plus
// its recordings in creation order.
type ShowResponse struct {
	Vault      models.Vault       `json:"vault"`
	Recordings []models.Recording `json:"recordings"`
}

// Handler handles vault HTTP endpoints.
type Handler struct {
	repo    *Repository
	recRepo *recordings.Repository
	logger  *zap.Logger
}

// NewHandler creates a vaults handler.
func NewHandler(repo *Repository, recRepo *recordings.Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, recRepo: recRepo, logger: logger}
}

// loadOwned fetches the vault and enforces ownership. Writes the error response
// itself and returns nil when the caller should stop.
func (h *Handler) loadOwned(c *gin.Context) *models.Vault {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid vault id")
		return nil
	}
	vault, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "vault not found")
		} else {
			h.logger.Error("get vault failed", zap.Error(err), zap.String("vault_id", id.String()))
			response.Internal(c, "failed to load vault")
		}
		return nil
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if vault.UserID != userID {
		response.Forbidden(c, "not your vault")
		return nil
	}
	return vault
}

// Create handles POST /vaults.
func (h *Handler) Create(c *gin.Context) {
	var req VaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	vault := &models.Vault{UserID: userID, Name: req.Name}
	if err := h.repo.Create(c.Request.Context(), vault); err != nil {
		h.logger.Error("create vault failed", zap.Error(err))
		response.Internal(c, "failed to create vault")
		return
	}
	response.Created(c, vault)
}

// List handles GET /vaults. Returns the user's vaults with recording counts.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list vaults failed", zap.Error(err))
		response.Internal(c, "failed to list vaults")
		return
	}
	response.OK(c, list)
}

// Show handles GET /vaults/:id. Returns the vault, its recordings in creation
// order and the live full transcript.
func (h *Handler) Show(c *gin.Context) {
	vault := h.loadOwned(c)
	if vault == nil {
		return
	}
	recs, err := h.recRepo.ListByVault(c.Request.Context(), vault.ID)
	if err != nil {
		h.logger.Error("list vault recordings failed", zap.Error(err), zap.String("vault_id", vault.ID.String()))
		response.Internal(c, "failed to load recordings")
		return
	}
	count := len(recs)
	full := FullTranscript(recs)
	vault.RecordingCount = &count
	vault.FullTranscript = &full
	response.OK(c, ShowResponse{Vault: *vault, Recordings: recs})
}

// Transcript handles GET /vaults/:id/transcript. Recomputed on every call.
func (h *Handler) Transcript(c *gin.Context) {
	vault := h.loadOwned(c)
	if vault == nil {
		return
	}
	recs, err := h.recRepo.ListByVault(c.Request.Context(), vault.ID)
	if err != nil {
		h.logger.Error("list vault recordings failed", zap.Error(err), zap.String("vault_id", vault.ID.String()))
		response.Internal(c, "failed to load recordings")
		return
	}
	response.OK(c, gin.H{"full_transcript": FullTranscript(recs)})
}

// Update handles PATCH /vaults/:id (rename).
func (h *Handler) Update(c *gin.Context) {
	vault := h.loadOwned(c)
	if vault == nil {
		return
	}
	var req VaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.repo.Rename(c.Request.Context(), vault.ID, req.Name); err != nil {
		h.logger.Error("rename vault failed", zap.Error(err), zap.String("vault_id", vault.ID.String()))
		response.Internal(c, "failed to rename vault")
		return
	}
	vault.Name = req.Name
	response.OK(c, vault)
}

// Delete handles DELETE /vaults/:id. Recordings survive with a null vault reference.
func (h *Handler) Delete(c *gin.Context) {
	vault := h.loadOwned(c)
	if vault == nil {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), vault.ID); err != nil {
		h.logger.Error("delete vault failed", zap.Error(err), zap.String("vault_id", vault.ID.String()))
		response.Internal(c, "failed to delete vault")
		return
	}
	response.NoContent(c)
}
