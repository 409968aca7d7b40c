// Package cmd implements the devlinkctl CLI commands.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"devlinkd/logging"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// Global flags.
var (
	globalRunRoot   string
	globalRootDir   string
	globalLog       string
	globalLogFormat string
	globalDebug     bool
	globalDryRun    bool
)

// defaultRunRoot is where the claim index lives absent --run-root.
const defaultRunRoot = "/run/udev/links"

// rootCmd is the base command for devlinkctl.
var rootCmd = &cobra.Command{
	Use:   "devlinkctl",
	Short: "Device-node symlink linker",
	Long: `devlinkctl drives the device-node linker out of process: it arbitrates
stable /dev symlinks across competing device claims and applies node
permissions and security labels.

It is scripting/diagnostic tooling around the linker core, not the core
itself — a device manager daemon embeds the devlink package directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetContext returns a context that cancels on SIGINT/SIGTERM.
func GetContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

// GetRunRoot returns the claim-index root directory.
func GetRunRoot() string {
	if globalRunRoot != "" {
		return globalRunRoot
	}
	return defaultRunRoot
}

// DryRun reports whether --dry-run was passed.
func DryRun() bool {
	return globalDryRun
}

// GetRootDir returns the alternate filesystem root device paths should be
// confined to, or "" to operate against the host's own /dev.
func GetRootDir() string {
	return globalRootDir
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalRunRoot, "run-root", "", "claim-index root directory (default: /run/udev/links)")
	rootCmd.PersistentFlags().StringVar(&globalRootDir, "root", "", "confine device paths to this filesystem root (for testing against a non-host /dev)")
	rootCmd.PersistentFlags().StringVar(&globalLog, "log", "", "set the log file path")
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "set the format for log output (text or json)")
	rootCmd.PersistentFlags().BoolVar(&globalDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&globalDryRun, "dry-run", false, "resolve and print the outcome without touching the filesystem")
}

func setupLogging() {
	logOutput := os.Stderr
	if globalLog != "" {
		if f, err := os.OpenFile(globalLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
			logOutput = f
		}
	}

	logLevel := slog.LevelInfo
	if globalDebug {
		logLevel = slog.LevelDebug
	}

	logger := logging.NewLogger(logging.Config{
		Level:  logLevel,
		Format: globalLogFormat,
		Output: logOutput,
	})
	logging.SetDefault(logger)
}
