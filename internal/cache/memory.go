package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is the in-process Store backend. Reads go through an
// RWMutex; a janitor goroutine sweeps expired entries.
type MemoryStore struct {
	mu              sync.RWMutex
	items           map[string]memoryEntry
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
	cleanupInterval time.Duration
}

// NewMemoryStore creates an in-memory store. A non-positive cleanup
// interval falls back to 5 minutes.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}

	s := &MemoryStore{
		items:           make(map[string]memoryEntry),
		stopCleanup:     make(chan struct{}),
		cleanupInterval: cleanupInterval,
	}

	go s.cleanupExpired()

	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	now := time.Now()
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		if e, exists := s.items[key]; exists && now.After(e.expiresAt) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}

	return entry.value, true, nil
}

// Set stores value under key. A non-positive ttl deletes the entry,
// which doubles as the explicit invalidation signal for cached discovery.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return nil
	}

	// Copy to decouple from caller's buffer
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	s.mu.Lock()
	s.items[key] = memoryEntry{
		value:     valueCopy,
		expiresAt: time.Now().Add(ttl),
	}
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) cleanupExpired() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for k, v := range s.items {
				if now.After(v.expiresAt) {
					delete(s.items, k)
				}
			}
			s.mu.Unlock()
		case <-s.stopCleanup:
			return
		}
	}
}

// Close stops the janitor goroutine. Call on shutdown or in tests.
func (s *MemoryStore) Close() error {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

// Len reports the number of stored entries, including not-yet-swept
// expired ones.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
