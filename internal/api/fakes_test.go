package api

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/shsh-journey/internal/domain"
)

type fakeRepo struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	entries   []*domain.JourneyEntry
	appendErr error
	pingErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]*domain.User)}
}

func (f *fakeRepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	if user == nil {
		return nil, nil
	}
	copy := *user
	return &copy, nil
}

func (f *fakeRepo) UpsertUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := *user
	f.users[user.UserID] = &copy
	return nil
}

func (f *fakeRepo) UpdateLastSeen(_ context.Context, userID string, lastSeen time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user := f.users[userID]; user != nil {
		user.LastSeenAt = lastSeen
	}
	return nil
}

func (f *fakeRepo) AppendJourney(_ context.Context, entry *domain.JourneyEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	copy := *entry
	f.entries = append(f.entries, &copy)
	return nil
}

func (f *fakeRepo) ListJourney(_ context.Context, userID string, limit int) ([]*domain.JourneyEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.JourneyEntry
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].UserID == userID {
			out = append(out, f.entries[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].VisitedAt.After(out[j].VisitedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) DeleteJourneyBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.entries[:0]
	var deleted int64
	for _, e := range f.entries {
		if e.VisitedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	f.entries = kept
	return deleted, nil
}

func (f *fakeRepo) Ping(context.Context) error { return f.pingErr }

func (f *fakeRepo) Close() error { return nil }

func (f *fakeRepo) journeyURLs(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var urls []string
	for _, e := range f.entries {
		if e.UserID == userID {
			urls = append(urls, e.URL)
		}
	}
	return urls
}

var errStoreDown = errors.New("store down")
