package navigation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/shsh-journey/internal/domain"
	"github.com/ashureev/shsh-journey/internal/identity"
	"github.com/ashureev/shsh-journey/internal/journey"
	"github.com/ashureev/shsh-journey/internal/store"
	"github.com/coder/websocket"
)

type streamFixture struct {
	repo store.Repository
	cm   *ConnManager
	url  string
}

func newStreamFixture(t *testing.T) *streamFixture {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "nav.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	cm := NewConnManager()
	h := NewHandler(journey.NewStoreSink(repo), cm, []string{"*"}, true, 0)
	srv := httptest.NewServer(identity.Middleware(repo, true)(h))
	t.Cleanup(srv.Close)

	return &streamFixture{repo: repo, cm: cm, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (f *streamFixture) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set(identity.SessionHeaderName, "tab-3")
	if userID != "" {
		header.Set("Cookie", identity.CookieName+"="+userID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, f.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	return conn
}

func (f *streamFixture) signIn(t *testing.T) *domain.User {
	t.Helper()
	user, err := identity.SignIn(context.Background(), httptest.NewRecorder(), f.repo, true)
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	return user
}

func exchange(t *testing.T, conn *websocket.Conn, frame string) message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var reply message
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatalf("Failed to decode reply %q: %v", data, err)
	}
	return reply
}

func waitForJourney(t *testing.T, repo store.Repository, userID string, want int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		entries, err := repo.ListJourney(context.Background(), userID, 100)
		if err != nil {
			t.Fatalf("ListJourney failed: %v", err)
		}
		if len(entries) >= want || time.Now().After(deadline) {
			urls := make([]string, 0, len(entries))
			for _, e := range entries {
				urls = append(urls, e.URL)
			}
			sort.Strings(urls)
			return urls
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestNavigationStreamRecordsDistinctPaths(t *testing.T) {
	f := newStreamFixture(t)
	user := f.signIn(t)
	conn := f.dial(t, user.UserID)

	for _, frame := range []string{
		`{"type":"navigate","path":"/a"}`,
		`{"type":"navigate","path":"/a"}`,
		`{"type":"navigate","path":"/b"}`,
	} {
		if reply := exchange(t, conn, frame); reply.Type != "ack" {
			t.Fatalf("Expected ack for %s, got %+v", frame, reply)
		}
	}
	if reply := exchange(t, conn, `not json`); reply.Type != "error" {
		t.Fatalf("Expected error for malformed frame, got %+v", reply)
	}
	if reply := exchange(t, conn, `{"type":"teleport"}`); reply.Type != "error" {
		t.Fatalf("Expected error for unknown frame, got %+v", reply)
	}
	if f.cm.GetActive(user.UserID, "tab-3") == nil {
		t.Fatal("Expected stream to be registered")
	}

	_ = conn.Close(websocket.StatusNormalClosure, "")

	urls := waitForJourney(t, f.repo, user.UserID, 2)
	if len(urls) != 2 || urls[0] != "/a" || urls[1] != "/b" {
		t.Fatalf("Expected /a and /b once each, got %v", urls)
	}
}

func TestNavigationStreamSignOutStopsReporting(t *testing.T) {
	f := newStreamFixture(t)
	user := f.signIn(t)
	conn := f.dial(t, user.UserID)

	exchange(t, conn, `{"type":"navigate","path":"/a"}`)
	urls := waitForJourney(t, f.repo, user.UserID, 1)
	if len(urls) != 1 {
		t.Fatalf("Expected /a to be recorded, got %v", urls)
	}

	if reply := exchange(t, conn, `{"type":"signout"}`); reply.Type != "ack" {
		t.Fatalf("Expected ack, got %+v", reply)
	}
	exchange(t, conn, `{"type":"navigate","path":"/b"}`)
	if reply := exchange(t, conn, `{"type":"ping"}`); reply.Type != "pong" {
		t.Fatalf("Expected pong, got %+v", reply)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")

	urls = waitForJourney(t, f.repo, user.UserID, 2)
	if len(urls) != 1 {
		t.Fatalf("Expected nothing recorded after sign out, got %v", urls)
	}
}

func TestNavigationStreamAnonymous(t *testing.T) {
	f := newStreamFixture(t)
	conn := f.dial(t, "")
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	if reply := exchange(t, conn, `{"type":"navigate","path":"/a"}`); reply.Type != "ack" {
		t.Fatalf("Expected ack, got %+v", reply)
	}
	if f.cm.Count() != 0 {
		t.Fatalf("Expected anonymous stream not to be registered, got %d", f.cm.Count())
	}
}
