package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/shsh-journey/internal/domain"
	"github.com/ashureev/shsh-journey/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeRetries   = 3
	writeBaseDelay = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode lets the retention sweep run alongside request writes.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS journey_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		url TEXT NOT NULL,
		visited_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_journey_user_visited ON journey_entries(user_id, visited_at DESC);
	CREATE INDEX IF NOT EXISTS idx_journey_visited ON journey_entries(visited_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	err := shared.RetryOnConflict(ctx, "upsert_user", writeRetries, writeBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			user.UserID, user.Username, user.LastSeenAt.Unix(),
			user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`

	var rows int64
	err := shared.RetryOnConflict(ctx, "update_last_seen", writeRetries, writeBaseDelay, func() error {
		result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// AppendJourney records a visited page.
func (s *SQLiteStore) AppendJourney(ctx context.Context, entry *domain.JourneyEntry) error {
	query := `
	INSERT INTO journey_entries (id, user_id, session_id, url, visited_at)
	VALUES (?, ?, ?, ?, ?)`

	err := shared.RetryOnConflict(ctx, "append_journey", writeRetries, writeBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			entry.ID, entry.UserID, entry.SessionID, entry.URL, entry.VisitedAt.UnixMilli(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("append journey entry: %w", err)
	}
	return nil
}

// ListJourney returns up to limit entries for a user, newest first.
func (s *SQLiteStore) ListJourney(ctx context.Context, userID string, limit int) ([]*domain.JourneyEntry, error) {
	query := `
		SELECT id, user_id, session_id, url, visited_at
		FROM journey_entries WHERE user_id = ?
		ORDER BY visited_at DESC, rowid DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query journey: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close journey rows", "error", closeErr)
		}
	}()

	var entries []*domain.JourneyEntry
	for rows.Next() {
		var entry domain.JourneyEntry
		var visitedAt int64
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.SessionID, &entry.URL, &visitedAt); err != nil {
			return nil, fmt.Errorf("scan journey row: %w", err)
		}
		entry.VisitedAt = time.UnixMilli(visitedAt).UTC()
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journey: %w", err)
	}

	return entries, nil
}

// DeleteJourneyBefore removes entries visited before cutoff.
func (s *SQLiteStore) DeleteJourneyBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM journey_entries WHERE visited_at < ?`

	var deleted int64
	err := shared.RetryOnConflict(ctx, "delete_journey", writeRetries, writeBaseDelay, func() error {
		result, err := s.db.ExecContext(ctx, query, cutoff.UnixMilli())
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete journey entries: %w", err)
	}
	return deleted, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
