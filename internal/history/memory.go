package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps entries in process memory, newest first per user.
type MemoryStore struct {
	mu      sync.RWMutex
	max     int
	entries map[string][]Entry
	owners  map[string]string
	now     func() time.Time
}

// NewMemoryStore keeps at most maxEntries entries per user.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		max:     capacity(maxEntries),
		entries: make(map[string][]Entry),
		owners:  make(map[string]string),
		now:     time.Now,
	}
}

// Save stores e under a new id and drops the user's oldest entries beyond capacity.
func (s *MemoryStore) Save(ctx context.Context, e Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.ID = uuid.NewString()
	e.User = normalizeUser(e.User)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := append([]Entry{e}, s.entries[e.User]...)
	if len(list) > s.max {
		for _, dropped := range list[s.max:] {
			delete(s.owners, dropped.ID)
		}
		list = list[:s.max]
	}
	s.entries[e.User] = list
	s.owners[e.ID] = e.User
	return e.ID, nil
}

// List returns up to limit entries for user. A non-positive limit returns all.
func (s *MemoryStore) List(ctx context.Context, user string, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.entries[normalizeUser(user)]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]Entry, limit)
	copy(out, list[:limit])
	return out, nil
}

// Delete removes one entry of user.
func (s *MemoryStore) Delete(ctx context.Context, user, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user = normalizeUser(user)
	if owner, ok := s.owners[id]; !ok || owner != user {
		return ErrNotFound
	}
	list := s.entries[user]
	for i, e := range list {
		if e.ID == id {
			s.entries[user] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	delete(s.owners, id)
	return nil
}

// Clear removes every entry of user.
func (s *MemoryStore) Clear(ctx context.Context, user string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user = normalizeUser(user)
	for _, e := range s.entries[user] {
		delete(s.owners, e.ID)
	}
	delete(s.entries, user)
	return nil
}
