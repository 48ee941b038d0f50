// Package identity provides the cookie-based learner session primitives.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/shsh-journey/internal/domain"
	"github.com/ashureev/shsh-journey/internal/store"
)

const (
	CookieName            = "shsh_uid"
	SessionHeaderName     = "X-SHSH-Session-ID"
	DefaultSessionIDValue = "default"
	cookieMaxAge          = 30 * 24 * time.Hour
)

type contextKey int

const (
	userIDKey contextKey = iota
	usernameKey
	sessionIDKey
)

var (
	userIDPattern    = regexp.MustCompile(`^usr_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// UserIDFromContext extracts the signed-in user ID from the request context.
// Returns "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// UsernameFromContext extracts the username from the request context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the tab session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

// NewContext returns ctx carrying the given identity.
func NewContext(ctx context.Context, userID, username, sessionID string) context.Context {
	if userID != "" {
		ctx = context.WithValue(ctx, userIDKey, userID)
		ctx = context.WithValue(ctx, usernameKey, username)
	}
	return context.WithValue(ctx, sessionIDKey, sanitizeSessionID(sessionID))
}

func generateUserID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate user id: %w", err)
	}
	return "usr_" + hex.EncodeToString(buf), nil
}

// IsValidUserID reports whether id has the shape of an issued user ID.
func IsValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

// DeriveUsername returns the display name for a user ID.
func DeriveUsername(userID string) string {
	if len(userID) > 12 {
		return "learner-" + userID[len(userID)-8:]
	}
	return "learner"
}

// Cookie builds the session cookie for userID.
func Cookie(userID string, isDev bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    userID,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		Expires:  time.Now().Add(cookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	}
}

// SignIn issues a new learner identity, persists the user and sets the
// session cookie on w.
func SignIn(ctx context.Context, w http.ResponseWriter, repo store.Repository, isDev bool) (*domain.User, error) {
	userID, err := generateUserID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &domain.User{
		UserID:     userID,
		Username:   DeriveUsername(userID),
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	http.SetCookie(w, Cookie(userID, isDev))
	return user, nil
}

// SignOut expires the session cookie.
func SignOut(w http.ResponseWriter, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sanitizeSessionID(sid)
}

// Middleware resolves the learner identity from the session cookie. Requests
// without a valid cookie, or whose user no longer exists, continue anonymously.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := sessionIDFromRequest(r)

			c, err := r.Cookie(CookieName)
			if err != nil || !IsValidUserID(c.Value) {
				next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), "", "", sessionID)))
				return
			}

			user, err := repo.GetUser(r.Context(), c.Value)
			if err != nil {
				slog.Error("Failed to resolve user", "user_id", c.Value, "error", err)
				http.Error(w, `{"error":"failed to resolve user"}`, http.StatusInternalServerError)
				return
			}
			if user == nil {
				next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), "", "", sessionID)))
				return
			}

			http.SetCookie(w, Cookie(user.UserID, isDev))
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), user.UserID, user.Username, sessionID)))
		})
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFromContext(r.Context()) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
