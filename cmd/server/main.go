// Package main is the entry point for the retail analytics HTTP server.
//
// The main package stays minimal: read configuration, build the logger,
// hand both to internal/server and start it. Everything else lives in
// internal/.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/retail-analytics/internal/config"
	"github.com/sakif/retail-analytics/internal/server"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	var envFile string
	var port int

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve the retail analytics API",
		Long: `Serves login, household lookup, the dashboard and dataset uploads.

Configuration comes from the environment (DATABASE_URL, JWT_SECRET,
BLOB_CONNECTION_STRING, ...) and an optional dotenv file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := cfg.NewLogger(os.Stdout)
			srv, err := server.New(context.Background(), cfg, logger)
			if err != nil {
				logger.Error("failed to create server", slog.String("error", err.Error()))
				return err
			}
			return srv.Start()
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to read before the environment")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides PORT)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		return 1
	}
	return 0
}
