package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ashureev/easely-bot/internal/config"
	"github.com/go-chi/chi/v5"
)

// Pinger checks backing store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports database and configuration health.
type HealthHandler struct {
	db  Pinger
	cfg *config.Config
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(db Pinger, cfg *config.Config) *HealthHandler {
	return &HealthHandler{db: db, cfg: cfg}
}

// RegisterHealth mounts GET /health.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// Health returns 200 when the database answers, 503 otherwise.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{"database": "ok"}
	if err := h.db.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		checks["database"] = err.Error()
	}

	if h.cfg != nil {
		checks["page_access_token"] = configured(h.cfg.Messenger.PageAccessToken != "")
		checks["app_secret"] = configured(h.cfg.Messenger.AppSecret != "")
		checks["credential_encryption"] = configured(h.cfg.CredentialKey != "")
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}
	JSON(w, status, map[string]interface{}{
		"status":    overall,
		"service":   "easely",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "missing"
}
