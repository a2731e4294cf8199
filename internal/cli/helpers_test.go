package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/keepstate/pkg/store"
	"github.com/mesh-intelligence/keepstate/pkg/types"
)

// openBackend attaches the SQLite store in dataDir directly, bypassing the
// registry, so tests can plant raw entries.
func openBackend(t *testing.T, dataDir string) types.Backend {
	t.Helper()
	backend, err := store.Open(types.Config{Backend: types.BackendSQLite, DataDir: dataDir})
	require.NoError(t, err)
	return backend
}
