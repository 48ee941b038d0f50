package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateJourneyURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want error
	}{
		{name: "app path", url: "/courses/linux-basics", want: nil},
		{name: "root", url: "/", want: nil},
		{name: "path with query", url: "/search?q=grep", want: nil},
		{name: "absolute https", url: "https://learn.example.com/a", want: nil},
		{name: "empty", url: "", want: ErrEmptyJourneyURL},
		{name: "whitespace", url: "   ", want: ErrEmptyJourneyURL},
		{name: "protocol relative", url: "//evil.example.com", want: ErrInvalidJourneyURL},
		{name: "javascript scheme", url: "javascript:alert(1)", want: ErrInvalidJourneyURL},
		{name: "bare word", url: "courses", want: ErrInvalidJourneyURL},
		{name: "too long", url: "/" + strings.Repeat("a", MaxJourneyURLLength), want: ErrJourneyURLTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateJourneyURL(tt.url)
			if !errors.Is(err, tt.want) {
				t.Fatalf("ValidateJourneyURL(%q) = %v, want %v", tt.url, err, tt.want)
			}
		})
	}
}

func TestUserIdleFor(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	u := &User{LastSeenAt: now.Add(-3 * time.Minute)}
	if got := u.IdleFor(now); got != 3*time.Minute {
		t.Errorf("Expected 3m idle, got %v", got)
	}

	u.LastSeenAt = now.Add(time.Minute)
	if got := u.IdleFor(now); got != 0 {
		t.Errorf("Expected 0 idle for future last seen, got %v", got)
	}
}
