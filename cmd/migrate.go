package main

import (
	"CardRoom/config"
	"CardRoom/internal/ledger"
	"CardRoom/internal/storage"
	"CardRoom/internal/utils"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create ledger tables for the configured database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := storage.InitDatabase(config.C.Database.Driver, config.C.Database.DSN); err != nil {
				return err
			}
			store := ledger.NewSQLStore(storage.DB, config.C.Database.Driver)
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			utils.Log.Info("migration done", "driver", config.C.Database.Driver)
			return nil
		},
	}
}
