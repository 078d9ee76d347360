// internal/daemon/config/config.go
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the single source of truth for bugzood configuration.
// Priority: defaults < config file < environment variables < CLI flags
type Config struct {
	Server   ServerConfig  `toml:"server"`
	Engine   EngineConfig  `toml:"engine"`
	Timeouts TimeoutConfig `toml:"timeouts"`
}

// ServerConfig holds core server settings.
type ServerConfig struct {
	Listen     string `toml:"listen"` // TCP address, loopback by default
	DataDir    string `toml:"data_dir"`
	LogLevel   string `toml:"log_level"`
	Workers    int    `toml:"workers"`
	Foreground bool   `toml:"foreground"`
}

// EngineConfig holds run execution settings.
type EngineConfig struct {
	ScenariosDir     string `toml:"scenarios_dir"`      // workspace root for scenario builds
	ArchivesDir      string `toml:"archives_dir"`       // cache for downloaded source archives
	RetainFailed     bool   `toml:"retain_failed"`      // keep workspaces of failed runs
	OutputLimitBytes int    `toml:"output_limit_bytes"` // per-stream capture cap
}

// TimeoutConfig holds various timeout settings.
type TimeoutConfig struct {
	Shutdown   time.Duration `toml:"shutdown"`
	Validation time.Duration `toml:"validation"` // default when a scenario declares none
	Download   time.Duration `toml:"download"`
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".bugzood")
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Server: ServerConfig{
			Listen:     "127.0.0.1:6060",
			DataDir:    dataDir,
			LogLevel:   "info",
			Workers:    2,
			Foreground: true,
		},
		Engine: EngineConfig{
			ScenariosDir:     filepath.Join(dataDir, "scenarios"),
			ArchivesDir:      filepath.Join(dataDir, "archives"),
			RetainFailed:     false,
			OutputLimitBytes: 1 << 20,
		},
		Timeouts: TimeoutConfig{
			Shutdown:   30 * time.Second,
			Validation: 10 * time.Minute,
			Download:   30 * time.Minute,
		},
	}
}
