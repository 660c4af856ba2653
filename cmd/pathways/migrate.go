package main

import (
	"github.com/spf13/cobra"

	"pathways/internal/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, db, err := serviceEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer log.Sync()
			return db.Close()
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the demo parent account on an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, db, err := serviceEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer log.Sync()
			defer db.Close()
			return database.Seed(cmd.Context(), db, log)
		},
	}
}
