package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/akdey/DevOpsDebugger/config"
	"github.com/akdey/DevOpsDebugger/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return server.Run(ctx, cfg)
	},
}
