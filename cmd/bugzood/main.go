// cmd/bugzood/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/squareslab/bugzood/internal/daemon/config"
	"github.com/squareslab/bugzood/internal/daemon/server"
	"github.com/squareslab/bugzood/internal/version"
)

// Flag variables for CLI overrides
var (
	flagConfigPath   string
	flagListen       string
	flagDataDir      string
	flagLogLevel     string
	flagWorkers      int
	flagForeground   bool
	flagRetainFailed bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bugzood",
		Short: "Bug scenario execution daemon",
		Long:  `bugzood materializes bug scenarios into workspaces, builds them, and runs their validation commands.`,
		RunE:  runDaemon,
	}

	defaults := config.DefaultConfig()

	rootCmd.Flags().StringVar(&flagConfigPath, "config", "", "Config file path (default: ~/.bugzood/bugzood.toml)")

	rootCmd.Flags().StringVar(&flagListen, "listen", "", fmt.Sprintf("TCP listen address (default: %s)", defaults.Server.Listen))
	rootCmd.Flags().StringVar(&flagDataDir, "data-dir", "", fmt.Sprintf("Data directory (default: %s)", defaults.Server.DataDir))
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", fmt.Sprintf("Log level: debug, info, warn, error (default: %s)", defaults.Server.LogLevel))
	rootCmd.Flags().IntVar(&flagWorkers, "workers", 0, fmt.Sprintf("Workers per controller (default: %d)", defaults.Server.Workers))
	rootCmd.Flags().BoolVar(&flagForeground, "foreground", true, "Run in foreground")
	rootCmd.Flags().BoolVar(&flagRetainFailed, "retain-failed", false, "Keep workspaces of failed runs for inspection")

	rootCmd.AddCommand(version.NewCmd("bugzood", "bugzood"))
	rootCmd.AddCommand(newConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	dataDir := config.DefaultDataDir()
	if flagDataDir != "" {
		dataDir = flagDataDir
	}

	// Load config: defaults < file < env
	loader := config.NewLoader(dataDir, flagConfigPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply CLI flag overrides (highest priority)
	applyFlagOverrides(cmd, cfg)

	if err := config.Validate(cfg); err != nil {
		return err
	}

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}
	return srv.Run(context.Background())
}

// applyFlagOverrides applies CLI flags to config (highest priority).
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("listen") {
		cfg.Server.Listen = flagListen
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Server.DataDir = flagDataDir
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Server.LogLevel = flagLogLevel
	}
	if cmd.Flags().Changed("workers") {
		cfg.Server.Workers = flagWorkers
	}
	if cmd.Flags().Changed("foreground") {
		cfg.Server.Foreground = flagForeground
	}
	if cmd.Flags().Changed("retain-failed") {
		cfg.Engine.RetainFailed = flagRetainFailed
	}
}
