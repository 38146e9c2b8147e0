package cache

import (
	"context"
	"errors"
	"sync"
)

// ErrWriteRejected is returned by MemoryStore when FailWrites is set.
var ErrWriteRejected = errors.New("write rejected")

// MemoryStore keeps entries in process memory. It is used by tests and the mock transport.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
	failing bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

// FailWrites makes subsequent Save calls fail until reset.
func (s *MemoryStore) FailWrites(fail bool) {
	s.mu.Lock()
	s.failing = fail
	s.mu.Unlock()
}

// Load returns the raw entry stored under key.
func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Save stores data under key.
func (s *MemoryStore) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrWriteRejected
	}
	s.entries[key] = append([]byte(nil), data...)
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
