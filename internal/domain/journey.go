package domain

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// MaxJourneyURLLength bounds the size of a recorded navigation path.
const MaxJourneyURLLength = 2048

var (
	// ErrEmptyJourneyURL is returned when a journey entry carries no URL.
	ErrEmptyJourneyURL = errors.New("journey url is empty")
	// ErrJourneyURLTooLong is returned when a journey URL exceeds MaxJourneyURLLength.
	ErrJourneyURLTooLong = errors.New("journey url is too long")
	// ErrInvalidJourneyURL is returned for URLs that are neither app paths nor http(s) URLs.
	ErrInvalidJourneyURL = errors.New("journey url is invalid")
)

// JourneyEntry is a single visited page in a learner's journey.
type JourneyEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	URL       string    `json:"url"`
	VisitedAt time.Time `json:"visited_at"`
}

// Validate checks the entry URL. Relative app paths ("/courses/1") and
// absolute http(s) URLs are accepted.
func (e *JourneyEntry) Validate() error {
	return ValidateJourneyURL(e.URL)
}

// ValidateJourneyURL reports whether raw is acceptable as a journey URL.
func ValidateJourneyURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrEmptyJourneyURL
	}
	if len(raw) > MaxJourneyURLLength {
		return ErrJourneyURLTooLong
	}
	if strings.HasPrefix(raw, "/") {
		if strings.HasPrefix(raw, "//") {
			return ErrInvalidJourneyURL
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidJourneyURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidJourneyURL
	}
	return nil
}
