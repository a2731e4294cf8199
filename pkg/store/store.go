// Package store is the public factory for Backend Stores. It keeps the
// implementations internal and selects one from Config.Backend.
package store

import (
	"fmt"

	"github.com/mesh-intelligence/keepstate/internal/memory"
	"github.com/mesh-intelligence/keepstate/internal/sqlite"
	"github.com/mesh-intelligence/keepstate/pkg/types"
)

// NewBackend returns a detached backend of the named kind. Call Attach with
// a Config to initialize it.
//
// Example:
//
//	backend, err := store.NewBackend(types.BackendSQLite)
//	err = backend.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".keepstate-db",
//	})
//	defer backend.Detach()
func NewBackend(kind string) (types.Backend, error) {
	switch kind {
	case types.BackendSQLite:
		return sqlite.NewBackend(), nil
	case types.BackendMemory:
		return memory.NewBackend(), nil
	case "":
		return nil, types.ErrBackendEmpty
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrBackendUnknown, kind)
	}
}

// Open validates cfg, then creates and attaches the backend it names.
func Open(cfg types.Config) (types.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, err := NewBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}
	if err := backend.Attach(cfg); err != nil {
		return nil, fmt.Errorf("attach %s backend: %w", cfg.Backend, err)
	}
	return backend, nil
}
