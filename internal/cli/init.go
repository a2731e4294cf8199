package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize keepstate storage",
		Long: "Write config.yaml if it is missing, seeded with --data-dir and --app-id,\n" +
			"then create the data directory and initialize the storage backend.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed := defaultFileConfig()
			seed.AppID = a.appID
			if a.dataDir != "" {
				dir, err := filepath.Abs(a.dataDir)
				if err != nil {
					return sysErr(fmt.Errorf("resolve data dir: %w", err))
				}
				seed.DataDir = dir
			}
			if err := a.load(seed); err != nil {
				return err
			}

			_, backend, err := a.open()
			if err != nil {
				return err
			}
			if err := backend.Detach(); err != nil {
				return sysErr(fmt.Errorf("finalize storage: %w", err))
			}

			if a.jsonMode {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"config":   a.configPath,
					"backend":  a.cfg.Backend,
					"data_dir": a.cfg.DataDir,
					"app_id":   a.cfg.AppID,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "keepstate initialized (%s backend, data in %s)\n", a.cfg.Backend, a.cfg.DataDir)
			return nil
		},
	}
}
