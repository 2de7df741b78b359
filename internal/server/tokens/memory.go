package tokens

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value   string
	expires time.Time
}

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]memoryItem{}, now: time.Now}
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = memoryItem{value: value, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	if !s.now().Before(it.expires) {
		delete(s.items, key)
		return "", ErrKeyNotFound
	}
	return it.value, nil
}

// Keys returns the live keys. Tests use it to inspect what was issued.
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.items))
	for k, it := range s.items {
		if s.now().Before(it.expires) {
			out = append(out, k)
		}
	}
	return out
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }
