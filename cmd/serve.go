package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mcpgateway/internal/app"
	"mcpgateway/internal/config"
)

var (
	serveHost       string
	servePort       int
	serveConfigPath string
)

// serveCmd starts the gateway dataplane: the dispatcher, every client
// transport, and the admin/metrics HTTP surface (spec.md §6
// "mcpgateway serve --host --port --config").
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP Gateway dataplane",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.Flags{Host: serveHost, Port: servePort, ConfigPath: serveConfigPath})
	if err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return application.Run(ctx)
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "bind host (overrides config/env)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "bind port (overrides config/env)")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd)
}
