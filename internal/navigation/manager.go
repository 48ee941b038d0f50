// Package navigation streams browser navigation over WebSocket into
// per-connection journey trackers.
package navigation

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// streamKey identifies one browser tab of one learner.
type streamKey struct {
	userID    string
	sessionID string
}

// ConnManager keeps one navigation connection per user and tab session.
// Connections are closed outside the lock: a close handshake can take
// seconds and must not stall lookups for other learners.
type ConnManager struct {
	mu      sync.RWMutex
	streams map[streamKey]*websocket.Conn
}

// NewConnManager creates a new connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{streams: make(map[streamKey]*websocket.Conn)}
}

// GetActive returns the active connection for a user and session.
func (m *ConnManager) GetActive(userID, sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.streams[streamKey{userID, sessionID}]
}

// Count returns the number of active connections.
func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}

// Register makes conn the stream for a user/session and closes the one it
// replaces, if any.
func (m *ConnManager) Register(userID, sessionID string, conn *websocket.Conn) {
	key := streamKey{userID, sessionID}

	m.mu.Lock()
	replaced := m.streams[key]
	m.streams[key] = conn
	m.mu.Unlock()

	slog.Debug("Navigation stream registered", "user_id", userID, "session_id", sessionID)
	if replaced != nil && replaced != conn {
		closeStreams([]*websocket.Conn{replaced}, "session replaced")
	}
}

// Unregister removes conn if it is still the stream for the user/session.
func (m *ConnManager) Unregister(userID, sessionID string, conn *websocket.Conn) {
	key := streamKey{userID, sessionID}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streams[key] != conn {
		return
	}
	delete(m.streams, key)
	slog.Debug("Navigation stream unregistered", "user_id", userID, "session_id", sessionID)
}

// CloseUser terminates every navigation stream of a user, e.g. on sign-out.
// It returns once all of them have finished closing.
func (m *ConnManager) CloseUser(userID string) {
	var conns []*websocket.Conn

	m.mu.Lock()
	for key, conn := range m.streams {
		if key.userID != userID {
			continue
		}
		conns = append(conns, conn)
		delete(m.streams, key)
	}
	m.mu.Unlock()

	if len(conns) == 0 {
		return
	}
	closeStreams(conns, "signed out")
	slog.Info("Navigation streams closed", "user_id", userID, "count", len(conns))
}

// closeStreams closes conns concurrently and waits for every handshake.
func closeStreams(conns []*websocket.Conn, reason string) {
	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			_ = c.Close(websocket.StatusNormalClosure, reason)
		}(conn)
	}
	wg.Wait()
}
