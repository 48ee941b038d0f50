// Package journey reports learner navigation to the journey collector.
//
// A Tracker observes (session, path) updates from a navigation source and
// submits each distinct path visited while signed in. The most recently
// reported path is remembered per Tracker instance, so the same page is not
// reported twice in a row and a new Tracker starts from a clean slate.
package journey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrSubmissionFailed marks any failure to deliver a journey report.
// Transient and permanent failures are not distinguished.
var ErrSubmissionFailed = errors.New("journey submission failed")

// Session identifies the signed-in learner. A nil *Session means anonymous.
type Session struct {
	UserID    string
	SessionID string
}

// Sink delivers a single journey report.
type Sink interface {
	Report(ctx context.Context, session Session, path string) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, session Session, path string) error

// Report calls f(ctx, session, path).
func (f SinkFunc) Report(ctx context.Context, session Session, path string) error {
	return f(ctx, session, path)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger used for failed submissions.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithReportTimeout bounds each submission. Zero leaves timeouts to the sink.
func WithReportTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		t.timeout = d
	}
}

// WithOrderedCompletions makes the tracker discard successful completions
// that were dispatched before the last accepted one. Without it, when two
// paths are visited in quick succession the last reported path is whichever
// submission finished last.
func WithOrderedCompletions() Option {
	return func(t *Tracker) {
		t.ordered = true
	}
}

// Tracker reports distinct signed-in navigations to a Sink.
type Tracker struct {
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration
	ordered bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	last        string
	hasLast     bool
	inFlight    map[string]struct{}
	seq         uint64
	acceptedSeq uint64
	closed      bool
}

// NewTracker creates a tracker with no previously reported path.
func NewTracker(sink Sink, opts ...Option) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		sink:     sink,
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe handles a change of session or path. It never blocks on the sink:
// the report, if any, is submitted from a separate goroutine.
func (t *Tracker) Observe(session *Session, path string) {
	if session == nil || path == "" {
		return
	}

	t.mu.Lock()
	if t.closed || (t.hasLast && t.last == path) {
		t.mu.Unlock()
		return
	}
	if _, ok := t.inFlight[path]; ok {
		t.mu.Unlock()
		return
	}
	t.inFlight[path] = struct{}{}
	t.seq++
	seq := t.seq
	t.wg.Add(1)
	t.mu.Unlock()

	go t.report(*session, path, seq)
}

func (t *Tracker) report(session Session, path string, seq uint64) {
	defer t.wg.Done()

	ctx := t.ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	err := t.sink.Report(ctx, session, path)

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, path)

	if err != nil {
		if !errors.Is(err, ErrSubmissionFailed) {
			err = fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
		}
		if t.closed && errors.Is(err, context.Canceled) {
			t.logger.Debug("Journey report abandoned on close", "user_id", session.UserID, "path", path)
			return
		}
		t.logger.Warn("Journey report failed",
			"user_id", session.UserID,
			"session_id", session.SessionID,
			"path", path,
			"error", err)
		return
	}

	if t.closed {
		return
	}
	if t.ordered {
		if seq < t.acceptedSeq {
			t.logger.Debug("Discarding stale journey completion", "path", path, "seq", seq, "accepted_seq", t.acceptedSeq)
			return
		}
		t.acceptedSeq = seq
	}
	t.last = path
	t.hasLast = true
}

// LastReported returns the most recently reported path, if any.
func (t *Tracker) LastReported() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.hasLast
}

// Wait blocks until every dispatched report has completed, or until ctx is
// done. Unlike Close it leaves in-flight reports running, so a caller that has
// stopped calling Observe can drain them before tearing the tracker down.
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels in-flight submissions and waits for them to finish.
// Observe calls after Close are ignored.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}

// Navigation is one update from a navigation source.
type Navigation struct {
	Session *Session
	Path    string
}

// Run feeds navigations into t until events is closed or ctx is done.
// It returns nil when events is closed.
func Run(ctx context.Context, t *Tracker, events <-chan Navigation) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case nav, ok := <-events:
			if !ok {
				return nil
			}
			t.Observe(nav.Session, nav.Path)
		}
	}
}
