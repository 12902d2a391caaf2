package main

import (
	"github.com/spf13/cobra"

	"github.com/akdey/DevOpsDebugger/config"
	"github.com/akdey/DevOpsDebugger/internal/server"
)

var (
	migrateDir   string
	migrateSteps int
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply database migrations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		return server.Migrate(migrateDir, cfg.Storage.Postgres.DSN(), args[0], migrateSteps)
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDir, "dir", "file://migrations", "migration source directory")
	migrateCmd.Flags().IntVar(&migrateSteps, "steps", 0, "number of steps to apply (0 = all)")
}
