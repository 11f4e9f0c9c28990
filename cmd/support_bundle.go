package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mcpgateway/internal/config"
	"mcpgateway/internal/observability"
)

var (
	supportBundleNoLogs    bool
	supportBundleLogLines  int
	supportBundleOutputDir string
)

// supportBundleCmd collects sanitized diagnostics for filing a support
// request (spec.md §6 "mcpgateway --support-bundle [--no-logs]
// [--log-lines N] --output-dir D"). It writes a directory (not an archive,
// since the teacher's own CLI never shells out to tar/zip for its own
// commands) containing the resolved config with every secret masked, a
// tail of the log file when one is configured, and basic runtime info.
var supportBundleCmd = &cobra.Command{
	Use:   "support-bundle",
	Short: "Generate a sanitized diagnostics bundle",
	Args:  cobra.NoArgs,
	RunE:  runSupportBundle,
}

func runSupportBundle(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.Flags{})
	if err != nil {
		return err
	}

	outDir := supportBundleOutputDir
	if outDir == "" {
		outDir = "."
	}
	bundleDir := filepath.Join(outDir, fmt.Sprintf("support-bundle-%s", time.Now().UTC().Format("20060102T150405Z")))
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		return fmt.Errorf("creating bundle directory: %w", err)
	}

	if err := writeBundleConfig(bundleDir, cfg); err != nil {
		return err
	}
	if err := writeBundleInfo(bundleDir); err != nil {
		return err
	}
	if !supportBundleNoLogs {
		if err := writeBundleLogs(bundleDir, cfg, supportBundleLogLines); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "support bundle written to %s\n", bundleDir)
	return nil
}

// writeBundleConfig dumps the resolved config as JSON with every secret
// field replaced, never the raw value (spec.md §6 "sanitized diagnostics
// (passwords/tokens/secrets masked)").
func writeBundleConfig(bundleDir string, cfg config.Config) error {
	redacted := map[string]any{}
	b, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := json.Unmarshal(b, &redacted); err != nil {
		return fmt.Errorf("re-decoding config: %w", err)
	}
	for key := range redacted {
		if isSecretConfigKey(key) {
			redacted[key] = "******"
		}
	}
	out, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return fmt.Errorf("re-encoding config: %w", err)
	}
	return os.WriteFile(filepath.Join(bundleDir, "config.json"), out, 0o644)
}

func isSecretConfigKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range []string{"secret", "password", "token", "key"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func writeBundleInfo(bundleDir string) error {
	info := strings.Join([]string{
		"mcpgateway support bundle",
		"generated_at=" + time.Now().UTC().Format(time.RFC3339),
		"go_version=" + runtime.Version(),
		"os=" + runtime.GOOS,
		"arch=" + runtime.GOARCH,
		"",
	}, "\n")
	return os.WriteFile(filepath.Join(bundleDir, "info.txt"), []byte(info), 0o644)
}

// writeBundleLogs copies the tail of the configured log file, masking any
// line that looks like a header or body field containing a credential
// using the same patterns the request pipeline applies at log time.
func writeBundleLogs(bundleDir string, cfg config.Config, maxLines int) error {
	if !cfg.LogToFile || cfg.LogFilePath == "" {
		return os.WriteFile(filepath.Join(bundleDir, "logs.txt"), []byte("log-to-file is disabled; no log file to collect\n"), 0o644)
	}
	raw, err := os.ReadFile(cfg.LogFilePath)
	if err != nil {
		return os.WriteFile(filepath.Join(bundleDir, "logs.txt"), []byte(fmt.Sprintf("could not read log file %s: %v\n", cfg.LogFilePath, err)), 0o644)
	}
	lines := strings.Split(string(raw), "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	masked := make([]string, len(lines))
	for i, line := range lines {
		masked[i] = observability.MaskLogLine(line)
	}
	return os.WriteFile(filepath.Join(bundleDir, "logs.txt"), []byte(strings.Join(masked, "\n")), 0o644)
}

func init() {
	supportBundleCmd.Flags().BoolVar(&supportBundleNoLogs, "no-logs", false, "exclude the log file tail from the bundle")
	supportBundleCmd.Flags().IntVar(&supportBundleLogLines, "log-lines", 1000, "number of trailing log lines to include")
	supportBundleCmd.Flags().StringVar(&supportBundleOutputDir, "output-dir", "", "directory to write the bundle into (default: current directory)")
	rootCmd.AddCommand(supportBundleCmd)
}
