// Package keepstate wires a Backend Store and a namespaced Registry from a
// single Config.
//
//	reg, backend, err := keepstate.Open(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".keepstate-db",
//	    AppID:   "shop",
//	})
//	defer backend.Detach()
package keepstate

import (
	"github.com/mesh-intelligence/keepstate/pkg/registry"
	"github.com/mesh-intelligence/keepstate/pkg/store"
	"github.com/mesh-intelligence/keepstate/pkg/types"
)

// Version is the keepstate release.
const Version = "0.3.0"

// Open attaches the backend cfg names and returns a Registry over it,
// namespaced with cfg.AppID. opts are applied after the namespace option, so
// a WithNamespace in opts wins. The caller owns the backend and must Detach
// it.
func Open(cfg types.Config, opts ...registry.Option) (*registry.Registry, types.Backend, error) {
	backend, err := store.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	all := append([]registry.Option{registry.WithNamespace(cfg.AppID)}, opts...)
	return registry.New(backend, all...), backend, nil
}
