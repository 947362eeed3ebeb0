package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alevsk/driftwatch/internal/api"
	"github.com/alevsk/driftwatch/internal/audit"
	"github.com/alevsk/driftwatch/internal/inventory"
)

var (
	// Server flags
	serverHost    string
	serverPort    int
	serverTimeout string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the DriftWatch API server",
	Long: `Start an HTTP server exposing the audit pipeline. POST a rendered manifest
stream to /api/v1/audit to receive the compliance report as JSON.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		// Override config values with flags if provided
		if cmd.Flags().Changed("host") {
			cfg.Server.Host = serverHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = serverPort
		}
		if cmd.Flags().Changed("timeout") {
			if duration, err := time.ParseDuration(serverTimeout); err == nil {
				cfg.Server.Timeout = duration
			}
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		lister, err := inventory.NewKubeLister(cfg.Kubeconfig)
		if err != nil {
			return fmt.Errorf("error building cluster client: %w", err)
		}
		runner, err := audit.NewRunner(cfg, lister)
		if err != nil {
			return err
		}

		server := api.NewServer(runner, cfg.Server.Timeout)
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		return server.Start(addr)
	},
}

func init() {
	// Server flags
	serveCmd.Flags().StringVarP(&serverHost, "host", "H", "", "Server host (default: 0.0.0.0)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Server port (default: 8080)")
	serveCmd.Flags().StringVarP(&serverTimeout, "timeout", "t", "", "Server timeout (e.g., 30s, 1m)")
}
