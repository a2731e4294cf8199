package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/keepstate/internal/paths"
	"github.com/mesh-intelligence/keepstate/pkg/types"
)

const (
	configFileName = "config.yaml"
	envPrefix      = "KEEPSTATE"

	keyBackend       = "backend"
	keyDataDir       = "data_dir"
	keyAppID         = "app_id"
	keySyncStrategy  = "sync_strategy"
	keyBatchSize     = "batch_size"
	keyBatchInterval = "batch_interval"
)

const configHeader = "# keepstate configuration\n# backend: sqlite | memory; sync_strategy: immediate | on_close | batch\n\n"

// fileConfig is the shape written to config.yaml.
type fileConfig struct {
	Backend       string `yaml:"backend"`
	DataDir       string `yaml:"data_dir,omitempty"`
	AppID         string `yaml:"app_id,omitempty"`
	SyncStrategy  string `yaml:"sync_strategy"`
	BatchSize     int    `yaml:"batch_size"`
	BatchInterval int    `yaml:"batch_interval"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Backend:       types.BackendSQLite,
		SyncStrategy:  types.SyncImmediate,
		BatchSize:     types.DefaultBatchSize,
		BatchInterval: types.DefaultBatchInterval,
	}
}

func configPath(configDir string) string {
	return filepath.Join(configDir, configFileName)
}

// ensureConfigFile creates the config directory and writes cfg to path when
// no file exists there. An existing file is left alone.
func ensureConfigFile(path string, cfg fileConfig) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, append([]byte(configHeader), data...), 0o644)
}

// loadConfig reads config.yaml with Viper. KEEPSTATE_<KEY> environment
// variables override file values; data_dir is resolved by the paths chain
// instead.
func loadConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(keyBackend, types.BackendSQLite)
	v.SetDefault(keySyncStrategy, types.SyncImmediate)
	v.SetDefault(keyBatchSize, types.DefaultBatchSize)
	v.SetDefault(keyBatchInterval, types.DefaultBatchInterval)
	v.SetConfigFile(path)

	v.SetEnvPrefix(envPrefix)
	for _, key := range []string{keyBackend, keyAppID, keySyncStrategy, keyBatchSize, keyBatchInterval} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// buildConfig merges flags over the loaded settings and validates the result.
func (a *app) buildConfig(v *viper.Viper) (types.Config, error) {
	dataDir, err := paths.ResolveDataDir(a.dataDir, v.GetString(keyDataDir))
	if err != nil {
		return types.Config{}, sysErr(fmt.Errorf("resolve data dir: %w", err))
	}
	appID := a.appID
	if appID == "" {
		appID = v.GetString(keyAppID)
	}

	cfg := types.Config{
		Backend: v.GetString(keyBackend),
		DataDir: dataDir,
		AppID:   appID,
		SQLite: types.SQLiteConfig{
			SyncStrategy:  v.GetString(keySyncStrategy),
			BatchSize:     v.GetInt(keyBatchSize),
			BatchInterval: v.GetInt(keyBatchInterval),
		},
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, userErr(fmt.Errorf("invalid configuration in %s: %w", a.configPath, err))
	}
	return cfg, nil
}
