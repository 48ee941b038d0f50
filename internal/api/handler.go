// Package api provides HTTP handlers for the journey collector.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/shsh-journey/internal/config"
	"github.com/ashureev/shsh-journey/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	repo store.Repository
	cfg  *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, cfg *config.Config) *Handler {
	return &Handler{
		repo: repo,
		cfg:  cfg,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// isDevelopment returns true if running in development mode.
func (h *Handler) isDevelopment() bool {
	if h.cfg == nil {
		return true
	}
	return h.cfg.IsDevelopment()
}
