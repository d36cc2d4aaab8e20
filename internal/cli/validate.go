package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ceyewan/aspect/config"
)

func newValidateCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Decode the policy declarations and report errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := flags.loader(cmd)
			if err != nil {
				return err
			}
			catalog, err := config.Decode(l, flags.key, Factories()...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d declarations under %q\n", catalog.Len(), flags.key)
			return nil
		},
	}
}
