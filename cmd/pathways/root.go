package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pathways",
		Short:         "Guidance for parents navigating an autism diagnosis",
		Long:          "Pathways for Parents: the account service (serve, migrate, seed) and a terminal journey client.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newJourneyCmd())
	return root
}
