package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pdftomanifest/files_manager"
	"pdftomanifest/logging"
	"pdftomanifest/server"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the generated package at its base URIs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger := logging.New(cfg.Log)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.Run(ctx, cfg, files_manager.NewLayout(cfg), logging.Component(logger, "server"))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default \":8000\")")
	return cmd
}
