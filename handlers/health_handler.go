package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/maternal-assistant/utils"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// StatusResponse describes the running service
type StatusResponse struct {
	Service     string           `json:"service"`
	Version     string           `json:"version"`
	Environment string           `json:"environment"`
	Uptime      string           `json:"uptime"`
	Providers   []ProviderStatus `json:"providers"`
}

// ProviderStatus reports whether a provider has a usable credential
type ProviderStatus struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
}

// ProviderLister lists known and configured providers
type ProviderLister interface {
	Names() []string
	Configured() []string
}

// ServiceInfo is static build and deployment information
type ServiceInfo struct {
	Name        string
	Version     string
	Environment string
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db        *sql.DB
	providers ProviderLister
	info      ServiceInfo
	started   time.Time
	logger    *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db is nil when history is disabled.
func NewHealthHandler(db *sql.DB, providers ProviderLister, info ServiceInfo, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:        db,
		providers: providers,
		info:      info,
		started:   time.Now(),
		logger:    logger,
	}
}

// HandleHealth handles GET /healthz
// Basic liveness check - always returns 200 if the process is serving
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz
// Ready when the history database answers and at least one provider has a credential
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	switch {
	case h.db == nil:
		checks["database"] = "disabled"
	case h.checkDatabase(ctx) != nil:
		checks["database"] = "unhealthy"
		allHealthy = false
	default:
		checks["database"] = "healthy"
	}

	if h.providers == nil || len(h.providers.Configured()) == 0 {
		checks["providers"] = "none_configured"
		allHealthy = false
	} else {
		checks["providers"] = "healthy"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// HandleStatus handles GET /api/v1/status
func (h *HealthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	var statuses []ProviderStatus
	if h.providers != nil {
		configured := make(map[string]bool)
		for _, name := range h.providers.Configured() {
			configured[name] = true
		}
		for _, name := range h.providers.Names() {
			statuses = append(statuses, ProviderStatus{Name: name, Configured: configured[name]})
		}
	}

	_ = utils.WriteOK(w, StatusResponse{
		Service:     h.info.Name,
		Version:     h.info.Version,
		Environment: h.info.Environment,
		Uptime:      time.Since(h.started).Round(time.Second).String(),
		Providers:   statuses,
	})
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		return err
	}

	var result int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		return err
	}

	return nil
}
