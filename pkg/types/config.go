package types

import "errors"

// Config holds backend selection and parameters for Backend.Attach.
type Config struct {
	Backend string       `json:"backend" yaml:"backend"`
	DataDir string       `json:"data_dir" yaml:"data_dir"`
	AppID   string       `json:"app_id" yaml:"app_id"`
	SQLite  SQLiteConfig `json:"sqlite" yaml:"sqlite"`
}

// SQLiteConfig controls when the SQLite backend rewrites its JSONL file.
type SQLiteConfig struct {
	// SyncStrategy is one of immediate, on_close, batch. Empty means immediate.
	SyncStrategy string `json:"sync_strategy" yaml:"sync_strategy"`

	// BatchSize is the number of queued writes that triggers a flush (batch only).
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// BatchInterval is the flush period in seconds (batch only).
	BatchInterval int `json:"batch_interval" yaml:"batch_interval"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Sync strategies for the SQLite backend.
const (
	SyncImmediate = "immediate"
	SyncOnClose   = "on_close"
	SyncBatch     = "batch"
)

// Defaults applied by the SQLiteConfig getters.
const (
	DefaultBatchSize     = 10
	DefaultBatchInterval = 5
)

// NamespaceSeparator joins the application identifier and a field name.
const NamespaceSeparator = "."

// Config validation errors.
var (
	ErrBackendEmpty         = errors.New("backend must not be empty")
	ErrBackendUnknown       = errors.New("unknown backend")
	ErrSyncStrategyUnknown  = errors.New("unknown sync strategy")
	ErrBatchSizeInvalid     = errors.New("batch size must be positive")
	ErrBatchIntervalInvalid = errors.New("batch interval must be positive")
)

var knownBackends = map[string]bool{
	BackendSQLite: true,
	BackendMemory: true,
}

var knownSyncStrategies = map[string]bool{
	"":            true,
	SyncImmediate: true,
	SyncOnClose:   true,
	SyncBatch:     true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	return c.SQLite.Validate()
}

// Namespace returns the key prefix derived from AppID: the identifier plus
// NamespaceSeparator, or the empty string when no AppID is configured.
func (c Config) Namespace() string {
	return NamespaceFor(c.AppID)
}

// NamespaceFor derives a namespace prefix from an application identifier.
func NamespaceFor(appID string) string {
	if appID == "" {
		return ""
	}
	return appID + NamespaceSeparator
}

// Validate checks the sync strategy and its batch parameters.
func (s SQLiteConfig) Validate() error {
	if !knownSyncStrategies[s.SyncStrategy] {
		return ErrSyncStrategyUnknown
	}
	if s.BatchSize < 0 {
		return ErrBatchSizeInvalid
	}
	if s.BatchInterval < 0 {
		return ErrBatchIntervalInvalid
	}
	return nil
}

// GetSyncStrategy returns the effective strategy, defaulting to immediate.
func (s SQLiteConfig) GetSyncStrategy() string {
	if s.SyncStrategy == "" {
		return SyncImmediate
	}
	return s.SyncStrategy
}

// GetBatchSize returns BatchSize or DefaultBatchSize when unset.
func (s SQLiteConfig) GetBatchSize() int {
	if s.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

// GetBatchInterval returns BatchInterval in seconds or DefaultBatchInterval when unset.
func (s SQLiteConfig) GetBatchInterval() int {
	if s.BatchInterval <= 0 {
		return DefaultBatchInterval
	}
	return s.BatchInterval
}
