package navigation

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/shsh-journey/internal/identity"
	"github.com/ashureev/shsh-journey/internal/journey"
	"github.com/coder/websocket"
)

// Handler accepts navigation streams. Each connection owns one journey
// tracker for its lifetime.
type Handler struct {
	sink           journey.Sink
	cm             *ConnManager
	allowedOrigins []string
	isDev          bool
	reportTimeout  time.Duration
	logger         *slog.Logger
}

// NewHandler creates a navigation stream handler reporting to sink.
func NewHandler(sink journey.Sink, cm *ConnManager, allowedOrigins []string, isDev bool, reportTimeout time.Duration) *Handler {
	return &Handler{
		sink:           sink,
		cm:             cm,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
		reportTimeout:  reportTimeout,
		logger:         slog.Default(),
	}
}

// message is a client or server frame.
type message struct {
	Type  string `json:"type"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	var session *journey.Session
	if userID != "" {
		session = &journey.Session{UserID: userID, SessionID: sessionID}
		h.cm.Register(userID, sessionID, ws)
		defer h.cm.Unregister(userID, sessionID, ws)
	}

	tracker := journey.NewTracker(h.sink,
		journey.WithLogger(h.logger),
		journey.WithReportTimeout(h.reportTimeout),
	)
	defer tracker.Close()

	h.logger.Info("Navigation stream opened", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))
	h.readLoop(r.Context(), ws, tracker, session)
	h.logger.Info("Navigation stream closed", "user_id", userID, "session_id", sessionID)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, tracker *journey.Tracker, session *journey.Session) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("WebSocket read error", "error", err)
			}
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(ctx, ws, message{Type: "error", Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case "navigate":
			tracker.Observe(session, msg.Path)
			h.reply(ctx, ws, message{Type: "ack", Path: msg.Path})
		case "signout":
			session = nil
			h.reply(ctx, ws, message{Type: "ack"})
		case "ping":
			h.reply(ctx, ws, message{Type: "pong"})
		default:
			h.reply(ctx, ws, message{Type: "error", Error: "unknown message type"})
		}
	}
}

func (h *Handler) reply(ctx context.Context, ws *websocket.Conn, msg message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		h.logger.Debug("Failed to write navigation reply", "type", msg.Type, "error", err)
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin)
	return false
}
