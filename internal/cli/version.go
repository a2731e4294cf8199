package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/keepstate/pkg/keepstate"
)

const modulePath = "github.com/mesh-intelligence/keepstate"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the keepstate version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "keepstate v%s\nmodule: %s\n", keepstate.Version, modulePath)
			return nil
		},
	}
}
