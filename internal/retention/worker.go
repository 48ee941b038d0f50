// Package retention prunes journey entries past their retention window.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/shsh-journey/internal/store"
)

// Worker periodically deletes journey entries older than MaxAge.
type Worker struct {
	repo     store.Repository
	maxAge   time.Duration
	interval time.Duration
	clock    func() time.Time
}

// NewWorker creates a retention worker.
func NewWorker(repo store.Repository, maxAge, interval time.Duration) *Worker {
	return &Worker{
		repo:     repo,
		maxAge:   maxAge,
		interval: interval,
		clock:    time.Now,
	}
}

// Start runs the sweep in a background goroutine until ctx is cancelled.
// The first sweep runs immediately.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", w.interval, "max_age", w.maxAge)

		w.Sweep(ctx)
		for {
			select {
			case <-ticker.C:
				w.Sweep(ctx)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep deletes expired entries once and returns how many were removed.
func (w *Worker) Sweep(ctx context.Context) int64 {
	cutoff := w.clock().Add(-w.maxAge)
	deleted, err := w.repo.DeleteJourneyBefore(ctx, cutoff)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Retention sweep interrupted", "error", err)
			return 0
		}
		slog.Error("Retention sweep failed", "error", err)
		return 0
	}
	if deleted > 0 {
		slog.Info("Retention sweep removed journey entries", "count", deleted, "cutoff", cutoff)
	}
	return deleted
}
