package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store used when Redis is not configured and
// in tests. Expired entries are dropped lazily on read.
type MemoryStore struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time
}

type memEntry struct {
	raw       []byte
	expiresAt time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *MemoryStore {
	return &MemoryStore{m: make(map[string]memEntry), now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (s *MemoryStore) WithNow(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return nil, nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.m, key)
		return nil, nil
	}
	return decodeEntry(e.raw), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = memEntry{raw: payload, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) SetNotFound(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = memEntry{raw: sentinelBytes, expiresAt: s.now().Add(ttl)}
	return nil
}
