package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node runs.
// Entries expire lazily on read.
type MemoryStore struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates a memory store. Zero ttl uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[string]*Entry),
	}
}

func (s *MemoryStore) Get(ctx context.Context, wallet string) (*Entry, error) {
	s.mu.RLock()
	entry, ok := s.entries[wallet]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if time.Since(entry.CachedAt) > s.ttl {
		s.mu.Lock()
		delete(s.entries, wallet)
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	// Shallow copy so callers cannot mutate the stored entry header.
	out := *entry
	return &out, nil
}

func (s *MemoryStore) Set(ctx context.Context, entry *Entry) error {
	stored := *entry
	s.mu.Lock()
	s.entries[entry.Wallet] = &stored
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, wallet string) error {
	s.mu.Lock()
	delete(s.entries, wallet)
	s.mu.Unlock()
	return nil
}

var _ Store = (*MemoryStore)(nil)
