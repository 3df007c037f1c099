package cmd

import (
	"github.com/spf13/cobra"
)

var (
	collectorURL string
	gatewayURL   string
)

var rootCmd = &cobra.Command{
	Use:   "twedge",
	Short: "Traceway Edge CLI",
	Long: `twedge is the command-line interface for Traceway Edge.

Seed synthetic telemetry into a running collector and inspect
service readiness from your terminal.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&collectorURL, "collector", "http://localhost:4318", "collector HTTP base URL")
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "gateway", "http://localhost:8080", "gateway base URL")
}
