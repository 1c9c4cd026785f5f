package main

import (
	"os"

	"CardRoom/config"
	"CardRoom/internal/utils"

	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cardroom",
		Short:         "No-Limit Hold'em table server",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Load(configPath); err != nil {
				return err
			}
			utils.Init(config.C.Log.Level)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file (env CARDROOM_* overrides)")
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		utils.Log.Error("cardroom exited", "err", err)
		os.Exit(1)
	}
}
