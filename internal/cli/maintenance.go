package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newPruneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove expired and corrupt entries in the namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			reg, backend, err := a.open()
			if err != nil {
				return err
			}
			defer deferClose(backend, &err)

			if _, err := namespaceFields(reg, backend); err != nil {
				return err
			}
			removed, err := reg.PruneExpired(cliKey)
			if err != nil {
				return sysErr(err)
			}
			if err := closeStorage(backend); err != nil {
				return err
			}

			if a.jsonMode {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"removed": removed})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries\n", removed)
			return nil
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry in the namespace",
		Long: "Clear removes every stored entry under the app id namespace, or every\n" +
			"entry in the store when no app id is set or --raw is given.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if !force {
				return userErr(errors.New("clear removes stored state; pass --force to confirm"))
			}

			reg, backend, err := a.open()
			if err != nil {
				return err
			}
			defer deferClose(backend, &err)

			n, err := namespaceFields(reg, backend)
			if err != nil {
				return err
			}
			if err := reg.ClearStorage(cliKey); err != nil {
				return sysErr(err)
			}
			if err := closeStorage(backend); err != nil {
				return err
			}

			if a.jsonMode {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"removed": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm removal")
	return cmd
}
