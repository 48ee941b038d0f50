package journey

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/shsh-journey/internal/domain"
	"github.com/ashureev/shsh-journey/internal/identity"
	"github.com/ashureev/shsh-journey/internal/store"
	"github.com/google/uuid"
)

// Endpoint is the collector route journey reports are posted to.
const Endpoint = "/users/journey"

// Request is the body of a journey report.
type Request struct {
	URL string `json:"url"`
}

// HTTPSink posts journey reports to a collector over HTTP.
type HTTPSink struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSink creates a sink posting to baseURL + Endpoint. A nil client
// falls back to one with a 10s timeout.
func NewHTTPSink(baseURL string, client *http.Client) *HTTPSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSink{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Report posts {"url": path} on behalf of session. Any 2xx status is success
// and the response body is ignored.
func (s *HTTPSink) Report(ctx context.Context, session Session, path string) error {
	body, err := json.Marshal(Request{URL: path})
	if err != nil {
		return fmt.Errorf("%w: encode request: %w", ErrSubmissionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrSubmissionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if session.SessionID != "" {
		req.Header.Set(identity.SessionHeaderName, session.SessionID)
	}
	req.AddCookie(&http.Cookie{Name: identity.CookieName, Value: session.UserID})

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: unexpected status %d", ErrSubmissionFailed, resp.StatusCode)
	}
	return nil
}

// StoreSink records journey reports straight into the repository, for
// trackers running inside the collector process.
type StoreSink struct {
	repo   store.Repository
	clock  func() time.Time
	logger *slog.Logger
}

// NewStoreSink creates a sink writing to repo.
func NewStoreSink(repo store.Repository) *StoreSink {
	return &StoreSink{repo: repo, clock: time.Now, logger: slog.Default()}
}

// Report validates path and appends a journey entry for session. Once the
// entry is stored the report counts as delivered; a failed last-seen update
// is only logged.
func (s *StoreSink) Report(ctx context.Context, session Session, path string) error {
	entry, err := NewEntry(session.UserID, session.SessionID, path, s.clock())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	if err := s.repo.AppendJourney(ctx, entry); err != nil {
		return fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	if err := s.repo.UpdateLastSeen(ctx, session.UserID, entry.VisitedAt); err != nil {
		s.logger.Warn("Failed to update last seen", "error", err, "user_id", session.UserID)
	}
	return nil
}

// NewEntry builds a validated journey entry visited at t.
func NewEntry(userID, sessionID, url string, t time.Time) (*domain.JourneyEntry, error) {
	entry := &domain.JourneyEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		URL:       url,
		VisitedAt: t.UTC(),
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return entry, nil
}
