package temporal

import (
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"
)

// LoadState parses a YAML temporal state document and validates it.
func LoadState(r io.Reader) (*State, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return &st, nil
}

// Store guards a State for concurrent readers and override writers.
// Reads hand out copies of definitions; the registry map itself never
// escapes the lock.
type Store struct {
	mu    sync.RWMutex
	state *State
}

// NewStore wraps a validated state.
func NewStore(st *State) *Store {
	return &Store{state: st}
}

// ActiveKey returns the active calendar key.
func (s *Store) ActiveKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ActiveCalendarKey
}

// Lookup returns the definition for key.
func (s *Store) Lookup(key string) (Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Lookup(key)
}

// Active returns the active calendar definition.
func (s *Store) Active() (Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Active()
}

// Keys returns every registered calendar key.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.state.Registry))
	for key := range s.state.Registry {
		keys = append(keys, key)
	}
	return keys
}

// Master returns the persisted master clock value.
func (s *Store) Master() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(s.state.MasterTimeSeconds)
}

// Apply solves nothing itself: it records an already-solved override for
// key, with the master clock advanced to the given value first so the
// display clock refresh uses current time.
func (s *Store) Apply(master int64, key string, ov Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.MasterTimeSeconds = Seconds(master)
	return ApplyOverride(s.state, key, ov)
}
