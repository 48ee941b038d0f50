package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/shsh-journey/internal/identity"
	"github.com/go-chi/chi/v5"
)

// SessionHandler signs learners in and out.
type SessionHandler struct {
	*Handler
	onSignOut func(userID string)
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base}
}

// SetSignOutHook registers fn to run after a signed-in learner signs out.
func (h *SessionHandler) SetSignOutHook(fn func(userID string)) {
	h.onSignOut = fn
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/", h.SignIn)
		r.Delete("/", h.SignOut)
	})
}

// Get returns the current learner and how long since their last recorded
// navigation, or 401 when anonymous.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load learner", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if user == nil {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"user_id":      userID,
		"username":     user.Username,
		"session_id":   identity.SessionIDFromContext(r.Context()),
		"last_seen_at": user.LastSeenAt.UTC(),
		"idle_seconds": int64(user.IdleFor(time.Now()) / time.Second),
	})
}

// SignIn issues a learner identity. An already signed-in learner keeps theirs.
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	if userID := identity.UserIDFromContext(r.Context()); userID != "" {
		JSON(w, http.StatusOK, map[string]string{
			"user_id":  userID,
			"username": identity.UsernameFromContext(r.Context()),
		})
		return
	}

	user, err := identity.SignIn(r.Context(), w, h.repo, h.isDevelopment())
	if err != nil {
		slog.Error("Failed to sign in", "error", err, "ip", identity.IPFromRequest(r))
		Error(w, http.StatusInternalServerError, "failed to sign in")
		return
	}

	slog.Info("Learner signed in", "user_id", user.UserID)
	JSON(w, http.StatusCreated, map[string]string{
		"user_id":  user.UserID,
		"username": user.Username,
	})
}

// SignOut clears the session cookie.
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	identity.SignOut(w, h.isDevelopment())
	if userID := identity.UserIDFromContext(r.Context()); userID != "" {
		slog.Info("Learner signed out", "user_id", userID)
		if h.onSignOut != nil {
			h.onSignOut(userID)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
