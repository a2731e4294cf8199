// Package memory provides a map-backed Backend Store. It holds no state
// beyond the process and is the natural store for tests and for in-process
// use where durability is not needed.
package memory

import (
	"sort"
	"sync"

	"github.com/mesh-intelligence/keepstate/pkg/types"
)

// Store implements types.Backend over a map. A Store returned by New is
// attached and usable immediately; Attach on it returns ErrAlreadyAttached.
type Store struct {
	mu       sync.RWMutex
	attached bool
	entries  map[string]string
}

// New returns an attached, empty Store.
func New() *Store {
	return &Store{attached: true, entries: map[string]string{}}
}

// NewBackend returns a detached Store; call Attach before use.
func NewBackend() *Store {
	return &Store{entries: map[string]string{}}
}

// Attach marks the store as usable. Config is accepted for interface
// compatibility; only its validity is checked.
func (s *Store) Attach(config types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	s.attached = true
	return nil
}

// Detach drops every entry. Detach is idempotent.
func (s *Store) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attached = false
	s.entries = map[string]string{}
	return nil
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.attached {
		return "", false, types.ErrStoreDetached
	}
	v, ok := s.entries[key]
	return v, ok, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key, value string) error {
	if key == "" {
		return types.ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return types.ErrStoreDetached
	}
	s.entries[key] = value
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return types.ErrStoreDetached
	}
	delete(s.entries, key)
	return nil
}

// Clear removes every entry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return types.ErrStoreDetached
	}
	s.entries = map[string]string{}
	return nil
}

// Keys returns the stored keys in ascending order.
func (s *Store) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.attached {
		return nil, types.ErrStoreDetached
	}
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
