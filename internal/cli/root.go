// Package cli implements the keepstate command-line interface: a tool to
// inspect and edit the entries a Registry persists.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/keepstate/internal/paths"
	"github.com/mesh-intelligence/keepstate/pkg/keepstate"
	"github.com/mesh-intelligence/keepstate/pkg/registry"
	"github.com/mesh-intelligence/keepstate/pkg/types"
)

// app holds global flag values and the state resolved before a subcommand
// runs.
type app struct {
	configDir string
	dataDir   string
	appID     string
	raw       bool
	jsonMode  bool
	verbose   bool

	now    func() time.Time
	logger *slog.Logger

	configPath string
	cfg        types.Config

	// openStorage attaches storage for cfg; nil means keepstate.Open.
	openStorage func(cfg types.Config, opts ...registry.Option) (*registry.Registry, types.Backend, error)
}

// NewRootCmd creates the top-level "keepstate" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{now: time.Now})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "keepstate",
		Short: "Inspect and edit persisted application state",
		Long: "keepstate reads and writes the entries saved by a state registry.\n" +
			"Field names are namespaced with the configured app id unless --raw is given.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configDir, "config-dir", "", "configuration directory (env "+paths.EnvConfigDir+")")
	pf.StringVar(&a.dataDir, "data-dir", "", "data directory (default: ./"+paths.DefaultDataDirName+")")
	pf.StringVar(&a.appID, "app-id", "", "application id used as key namespace (overrides config.yaml)")
	pf.BoolVar(&a.raw, "raw", false, "use keys verbatim, without the app id namespace")
	pf.BoolVar(&a.jsonMode, "json", false, "output in JSON format")
	pf.BoolVar(&a.verbose, "verbose", false, "log debug output to stderr")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newGetCmd(a),
		newSetCmd(a),
		newDeleteCmd(a),
		newListCmd(a),
		newPruneCmd(a),
		newClearCmd(a),
	)
	return root
}

// Execute runs the root command and exits with the code matching the error.
func Execute() {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	os.Exit(ExitCode(err))
}

// setup builds the logger and, for commands that touch storage, resolves
// the configuration.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	switch cmd.Name() {
	case "version", "help":
		return nil
	}

	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return sysErr(fmt.Errorf("resolve config dir: %w", err))
	}
	a.configPath = configPath(configDir)

	// init seeds config.yaml from flags before loading it.
	if cmd.Name() == "init" {
		return nil
	}
	return a.load(defaultFileConfig())
}

// load writes seed to config.yaml if the file is missing, then reads it and
// resolves the effective Config.
func (a *app) load(seed fileConfig) error {
	if err := ensureConfigFile(a.configPath, seed); err != nil {
		return sysErr(err)
	}
	v, err := loadConfig(a.configPath)
	if err != nil {
		return sysErr(err)
	}
	cfg, err := a.buildConfig(v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger.Debug("configuration loaded",
		"config", a.configPath, "backend", cfg.Backend, "data_dir", cfg.DataDir, "app_id", cfg.AppID)
	return nil
}

// open attaches the configured backend and returns a Registry over it. The
// caller must Detach the backend.
func (a *app) open() (*registry.Registry, types.Backend, error) {
	opts := []registry.Option{registry.WithLogger(a.logger), registry.WithClock(a.now)}
	if a.raw {
		opts = append(opts, registry.WithNamespace(""))
	}
	open := a.openStorage
	if open == nil {
		open = keepstate.Open
	}
	reg, backend, err := open(a.cfg, opts...)
	if err != nil {
		return nil, nil, sysErr(fmt.Errorf("open storage: %w", err))
	}
	return reg, backend, nil
}

// closeStorage detaches backend. Deferred writes are flushed here, so a
// failure means the command's changes may not have been persisted.
func closeStorage(backend types.Backend) error {
	if err := backend.Detach(); err != nil {
		return sysErr(fmt.Errorf("close storage: %w", err))
	}
	return nil
}

// deferClose is closeStorage for defer statements: it reports the close
// failure through err unless the command already failed.
func deferClose(backend types.Backend, err *error) {
	if cerr := closeStorage(backend); cerr != nil && *err == nil {
		*err = cerr
	}
}
