// Package cmd implements the gateway's CLI surface (spec.md §6): the
// `serve` and `support-bundle` subcommands (the bundle is a subcommand; the
// root command has no `--support-bundle` flag), built on
// github.com/spf13/cobra the same way the
// teacher's cmd/root.go builds muster's CLI — a package-level rootCmd,
// SetVersion/Execute entry points, and a getExitCode dispatcher mapping
// sentinel error types to process exit codes.
package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"mcpgateway/internal/app"
	"mcpgateway/internal/config"
)

// Exit codes per spec.md §6: "0 success, 1 generic failure, 2 config
// invalid, 3 store unavailable at startup".
const (
	ExitCodeSuccess          = 0
	ExitCodeError            = 1
	ExitCodeConfigInvalid    = 2
	ExitCodeStoreUnavailable = 3
)

var rootCmd = &cobra.Command{
	Use:          "mcpgateway",
	Short:        "MCP Gateway: a registry, dispatcher, and multi-transport front door for Model Context Protocol servers",
	SilenceUsage: true,
}

// SetVersion sets the version for the root command, injected from main at
// build time via -ldflags.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the CLI's entry point, called from main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mcpgateway version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps a command's returned error to spec.md §6's exit codes.
func getExitCode(err error) int {
	var cfgErr config.Errors
	switch {
	case errors.As(err, &cfgErr):
		return ExitCodeConfigInvalid
	case errors.Is(err, app.ErrStoreUnavailable):
		return ExitCodeStoreUnavailable
	default:
		return ExitCodeError
	}
}
