package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/shsh-journey/internal/domain"
	"github.com/ashureev/shsh-journey/internal/identity"
	"github.com/ashureev/shsh-journey/internal/journey"
	"github.com/go-chi/chi/v5"
)

const (
	defaultJourneyLimit = 50
	maxJourneyLimit     = 500
	maxJourneyBodyBytes = 8 << 10
)

// JourneyHandler records and lists learner journeys.
type JourneyHandler struct {
	*Handler
	clock func() time.Time
}

// NewJourneyHandler creates a new journey handler.
func NewJourneyHandler(base *Handler) *JourneyHandler {
	return &JourneyHandler{Handler: base, clock: time.Now}
}

// RegisterRoutes registers journey routes. Both require a signed-in learner.
func (h *JourneyHandler) RegisterRoutes(r chi.Router) {
	r.With(identity.RequireUser).Post(journey.Endpoint, h.Record)
	r.With(identity.RequireUser).Get(journey.Endpoint, h.List)
}

// Record stores a visited page for the current learner.
func (h *JourneyHandler) Record(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	var req journey.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJourneyBodyBytes)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := journey.NewEntry(userID, sessionID, req.URL, h.clock())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyJourneyURL),
			errors.Is(err, domain.ErrJourneyURLTooLong),
			errors.Is(err, domain.ErrInvalidJourneyURL):
			Error(w, http.StatusBadRequest, err.Error())
		default:
			Error(w, http.StatusInternalServerError, "failed to record journey")
		}
		return
	}

	if err := h.repo.AppendJourney(r.Context(), entry); err != nil {
		slog.Error("Failed to record journey", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to record journey")
		return
	}
	if err := h.repo.UpdateLastSeen(r.Context(), userID, entry.VisitedAt); err != nil {
		slog.Warn("Failed to update last seen", "error", err, "user_id", userID)
	}

	slog.Debug("Journey recorded", "user_id", userID, "session_id", sessionID, "url", entry.URL)
	w.WriteHeader(http.StatusNoContent)
}

// List returns the current learner's most recent journey entries.
func (h *JourneyHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	limit := defaultJourneyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxJourneyLimit)
	}

	entries, err := h.repo.ListJourney(r.Context(), userID, limit)
	if err != nil {
		slog.Error("Failed to list journey", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to list journey")
		return
	}
	if entries == nil {
		entries = []*domain.JourneyEntry{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}
