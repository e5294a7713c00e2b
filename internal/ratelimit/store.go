package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStoreFull is returned by a bounded store when a new identifier would
// exceed its capacity.
var ErrStoreFull = errors.New("ratelimit: store at capacity")

// Entry is the state of one identifier's current window.
type Entry struct {
	Count   int
	ResetAt time.Time
}

// Store counts hits per key. Hit resets the window when it is absent or
// expired (now after ResetAt), increments the count and returns the result.
// Both steps are atomic for a key.
type Store interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration) (Entry, error)
}

// Sweeper is implemented by stores that need expired entries evicted.
type Sweeper interface {
	// Sweep removes entries whose window ended before now and returns how
	// many were removed.
	Sweep(now time.Time) int
}

// MemoryStore keeps entries in a map guarded by a mutex.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	maxEntries int
}

// NewMemoryStore returns an empty store. maxEntries <= 0 means unbounded.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]*Entry),
		maxEntries: maxEntries,
	}
}

func (s *MemoryStore) Hit(_ context.Context, key string, now time.Time, window time.Duration) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		// expired windows still occupy slots until the next sweep
		if s.full() {
			s.sweepLocked(now)
		}
		if s.full() {
			return Entry{}, ErrStoreFull
		}
		e = &Entry{}
		s.entries[key] = e
	}
	if !ok || now.After(e.ResetAt) {
		e.Count = 0
		e.ResetAt = now.Add(window)
	}
	e.Count++
	return *e, nil
}

func (s *MemoryStore) full() bool {
	return s.maxEntries > 0 && len(s.entries) >= s.maxEntries
}

func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

func (s *MemoryStore) sweepLocked(now time.Time) int {
	n := 0
	for k, e := range s.entries {
		if now.After(e.ResetAt) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Len reports the number of tracked identifiers.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Get returns a copy of the entry for key.
func (s *MemoryStore) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}
