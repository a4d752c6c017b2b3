package system

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store holds the current system snapshot behind an atomic pointer.
// Resolvers, handlers, and the frame cache read without blocking; a load
// swaps the whole snapshot, and the frame cache cuts over when it notices
// a new LoadedAt stamp.
type Store struct {
	current atomic.Pointer[System]
	mu      sync.Mutex // one load at a time
}

// NewStore creates an empty Store. The service runs without a system until
// the first load; readiness reports 503 in that window.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current snapshot, nil when nothing is loaded.
func (s *Store) Get() *System {
	return s.current.Load()
}

// Set swaps in a new snapshot. In-flight resolutions keep the snapshot
// they started with.
func (s *Store) Set(sys *System) {
	s.current.Store(sys)
}

// AgeSeconds returns seconds since the snapshot was loaded, -1 when empty.
func (s *Store) AgeSeconds() float64 {
	sys := s.current.Load()
	if sys == nil {
		return -1
	}
	return time.Since(sys.LoadedAt).Seconds()
}

// Lock serializes load operations; the atomic swap itself never needs it.
func (s *Store) Lock() {
	s.mu.Lock()
}

// Unlock releases the load mutex.
func (s *Store) Unlock() {
	s.mu.Unlock()
}
