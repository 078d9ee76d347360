// cmd/bugzood/config.go
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/squareslab/bugzood/internal/daemon/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage bugzood configuration",
		Long:  `Commands for managing bugzood configuration files.`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// sampleConfig is written by 'bugzood config init'.
const sampleConfig = `# bugzood configuration file
# Priority: defaults < this file < environment variables < CLI flags

[server]
# TCP listen address. Keep this on loopback unless you trust the network:
# the API executes arbitrary build commands.
# listen = "127.0.0.1:6060"

# Data directory for the state database, workspaces, and archive cache.
# data_dir = "~/.bugzood"

# Log level: debug, info, warn, error
# log_level = "info"

# Concurrent run workers.
# workers = 2

[engine]
# Keep workspaces of failed runs for inspection.
# retain_failed = false

# Per-stream cap on captured stdout/stderr, in bytes.
# output_limit_bytes = 1048576

[timeouts]
# shutdown = "30s"

# Default validation timeout for scenarios that declare none.
# validation = "10m"

# Source archive download timeout.
# download = "30m"
`

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented sample config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := config.DefaultDataDir()
			if flagDataDir != "" {
				dataDir = flagDataDir
			}
			path := filepath.Join(dataDir, config.ConfigFileName)

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if err := os.MkdirAll(dataDir, 0755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  `Displays the effective configuration after merging defaults, file, and environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := config.DefaultDataDir()
			if flagDataDir != "" {
				dataDir = flagDataDir
			}
			cfg, err := config.NewLoader(dataDir, flagConfigPath).Load()
			if err != nil {
				return err
			}

			fmt.Println("Effective bugzood configuration:")
			fmt.Println(strings.Repeat("-", 50))
			fmt.Println()
			fmt.Println("[server]")
			fmt.Printf("  listen      = %q\n", cfg.Server.Listen)
			fmt.Printf("  data_dir    = %q\n", cfg.Server.DataDir)
			fmt.Printf("  log_level   = %q\n", cfg.Server.LogLevel)
			fmt.Printf("  workers     = %d\n", cfg.Server.Workers)
			fmt.Printf("  foreground  = %v\n", cfg.Server.Foreground)
			fmt.Println()
			fmt.Println("[engine]")
			fmt.Printf("  scenarios_dir      = %q\n", cfg.Engine.ScenariosDir)
			fmt.Printf("  archives_dir       = %q\n", cfg.Engine.ArchivesDir)
			fmt.Printf("  retain_failed      = %v\n", cfg.Engine.RetainFailed)
			fmt.Printf("  output_limit_bytes = %d\n", cfg.Engine.OutputLimitBytes)
			fmt.Println()
			fmt.Println("[timeouts]")
			fmt.Printf("  shutdown    = %s\n", cfg.Timeouts.Shutdown)
			fmt.Printf("  validation  = %s\n", cfg.Timeouts.Validation)
			fmt.Printf("  download    = %s\n", cfg.Timeouts.Download)

			return nil
		},
	}

	return cmd
}
