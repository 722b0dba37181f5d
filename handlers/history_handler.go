package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/maternal-assistant/internal/observability"
	"github.com/upb/maternal-assistant/middleware"
	"github.com/upb/maternal-assistant/models"
	"github.com/upb/maternal-assistant/repositories"
	"github.com/upb/maternal-assistant/services"
	"github.com/upb/maternal-assistant/services/prompt"
	"github.com/upb/maternal-assistant/utils"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	maxHistoryOffset    = 10000
)

// HistoryPage is one page of a user's interactions
type HistoryPage struct {
	Items  []*models.AssistantInteraction `json:"items"`
	Limit  int                            `json:"limit"`
	Offset int                            `json:"offset"`
}

// HistoryHandler serves a user's assistant history. A nil repository means
// the history store is not configured.
type HistoryHandler struct {
	repo   repositories.InteractionRepository
	logger *zap.Logger
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(repo repositories.InteractionRepository, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{
		repo:   repo,
		logger: logger,
	}
}

// HandleList handles GET /api/v1/history
func (h *HistoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx, h.logger)
	q := r.URL.Query()

	limit, err := utils.ParseBoundedInt(q.Get("limit"), "limit", defaultHistoryLimit, 1, maxHistoryLimit)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	offset, err := utils.ParseBoundedInt(q.Get("offset"), "offset", 0, 0, maxHistoryOffset)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	operation := q.Get("operation")
	if operation != "" {
		if _, err := prompt.Lookup(prompt.Operation(operation)); err != nil {
			HandleServiceError(w, services.ErrUnknownOperation.WithDetail("operation", operation), logger)
			return
		}
	}

	items, err := h.repo.ListByUser(ctx, middleware.GetUserIDFromContext(ctx), repositories.InteractionFilter{
		Operation: operation,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to list history", err), logger)
		return
	}
	if items == nil {
		items = []*models.AssistantInteraction{}
	}

	_ = utils.WriteOK(w, HistoryPage{Items: items, Limit: limit, Offset: offset})
}

// HandleGet handles GET /api/v1/history/{id}
func (h *HistoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx, h.logger)

	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	interaction, err := h.repo.GetByID(ctx, middleware.GetUserIDFromContext(ctx), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			HandleServiceError(w, services.ErrInteractionNotFound, logger)
			return
		}
		HandleServiceError(w, services.WrapInternal("failed to load interaction", err), logger)
		return
	}

	_ = utils.WriteOK(w, interaction)
}

// HandleStats handles GET /api/v1/history/stats
func (h *HistoryHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	ctx := r.Context()

	counts, err := h.repo.CountByOperation(ctx, middleware.GetUserIDFromContext(ctx))
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to count history", err), observability.LoggerFromContext(ctx, h.logger))
		return
	}
	if counts == nil {
		counts = []repositories.OperationCount{}
	}

	_ = utils.WriteOK(w, counts)
}

func (h *HistoryHandler) available(w http.ResponseWriter) bool {
	if h.repo != nil {
		return true
	}
	_ = utils.WriteError(w, http.StatusServiceUnavailable, "Interaction history is not enabled", nil)
	return false
}
