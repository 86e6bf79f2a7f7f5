package profile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process profile store for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[string]*Profile)}
}

func (s *InMemoryStore) Get(_ context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(p), nil
}

// Upsert creates or updates identity fields; history is never replaced
// through this path.
func (s *InMemoryStore) Upsert(_ context.Context, p Profile) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.profiles[p.UserID]
	if !ok {
		stored := p
		stored.History = nil
		s.profiles[p.UserID] = &stored
		return clone(&stored), nil
	}
	existing.Name = p.Name
	existing.Personality = p.Personality
	existing.Age = p.Age
	existing.Gender = p.Gender
	return clone(existing), nil
}

func (s *InMemoryStore) AppendTurn(_ context.Context, userID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	// Keep history timestamps non-decreasing even if the caller's clock
	// observed reordering.
	if n := len(p.History); n > 0 && turn.Timestamp.Before(p.History[n-1].Timestamp) {
		turn.Timestamp = p.History[n-1].Timestamp
	}
	p.History = append(p.History, turn)
	return nil
}

func (s *InMemoryStore) History(_ context.Context, userID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	arr := p.History
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Turn, 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

func clone(p *Profile) *Profile {
	c := *p
	c.History = make([]Turn, len(p.History))
	copy(c.History, p.History)
	return &c
}
