package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/ashureev/easely-bot/internal/messenger"
	"github.com/go-chi/chi/v5"
)

// ProfileSetter configures the page's Messenger profile.
type ProfileSetter interface {
	SetupProfile(ctx context.Context, p messenger.Profile) error
}

// SetupHandler serves POST /setup.
type SetupHandler struct {
	profiles ProfileSetter
	token    string
	profile  messenger.Profile
}

// NewSetupHandler creates a setup handler. An empty token disables the
// endpoint.
func NewSetupHandler(profiles ProfileSetter, token string, profile messenger.Profile) *SetupHandler {
	return &SetupHandler{profiles: profiles, token: token, profile: profile}
}

// RegisterRoutes mounts POST /setup.
func (h *SetupHandler) RegisterRoutes(r chi.Router) {
	r.Post("/setup", h.Setup)
}

// Setup pushes the get-started button, greeting and persistent menu.
func (h *SetupHandler) Setup(w http.ResponseWriter, r *http.Request) {
	if h.token == "" {
		Error(w, http.StatusNotFound, "setup is disabled")
		return
	}
	if subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Setup-Token")), []byte(h.token)) != 1 {
		Error(w, http.StatusUnauthorized, "invalid setup token")
		return
	}

	if err := h.profiles.SetupProfile(r.Context(), h.profile); err != nil {
		slog.Error("Failed to set up messenger profile", "error", err)
		JSON(w, http.StatusBadGateway, map[string]string{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	slog.Info("Messenger profile configured", "menu_items", len(h.profile.Menu))
	JSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Bot profile setup completed successfully",
	})
}
