// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/shsh-journey/internal/domain"
)

// Repository defines the interface for persisting users and their journeys.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// AppendJourney records a visited page.
	AppendJourney(ctx context.Context, entry *domain.JourneyEntry) error

	// ListJourney returns up to limit entries for a user, newest first.
	ListJourney(ctx context.Context, userID string, limit int) ([]*domain.JourneyEntry, error)

	// DeleteJourneyBefore removes entries visited before cutoff.
	DeleteJourneyBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
