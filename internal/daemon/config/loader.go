// internal/daemon/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "bugzood.toml"

// Environment variable names
const (
	EnvListen            = "BUGZOOD_LISTEN"
	EnvDataDir           = "BUGZOOD_DATA_DIR"
	EnvLogLevel          = "BUGZOOD_LOG_LEVEL"
	EnvWorkers           = "BUGZOOD_WORKERS"
	EnvForeground        = "BUGZOOD_FOREGROUND"
	EnvScenariosDir      = "BUGZOOD_SCENARIOS_DIR"
	EnvArchivesDir       = "BUGZOOD_ARCHIVES_DIR"
	EnvRetainFailed      = "BUGZOOD_RETAIN_FAILED"
	EnvOutputLimit       = "BUGZOOD_OUTPUT_LIMIT_BYTES"
	EnvShutdownTimeout   = "BUGZOOD_SHUTDOWN_TIMEOUT"
	EnvValidationTimeout = "BUGZOOD_VALIDATION_TIMEOUT"
	EnvDownloadTimeout   = "BUGZOOD_DOWNLOAD_TIMEOUT"
)

// Loader loads configuration from file, environment, and applies defaults.
type Loader struct {
	dataDir    string
	configPath string // explicit config path (empty = use default)
}

// NewLoader creates a new config loader.
// dataDir is the base data directory (for finding bugzood.toml).
// configPath is an explicit config file path (empty = use dataDir/bugzood.toml).
func NewLoader(dataDir, configPath string) *Loader {
	return &Loader{
		dataDir:    dataDir,
		configPath: configPath,
	}
}

// Load loads configuration with priority: defaults < file < env.
// Returns fully populated Config ready for use.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	// Override dataDir if provided; derived directories follow it.
	if l.dataDir != "" {
		cfg.Server.DataDir = l.dataDir
		cfg.Engine.ScenariosDir = filepath.Join(l.dataDir, "scenarios")
		cfg.Engine.ArchivesDir = filepath.Join(l.dataDir, "archives")
	}

	fileCfg, err := l.loadFile()
	if err != nil {
		return nil, err
	}
	if fileCfg != nil {
		mergeFileConfig(cfg, fileCfg)
	}

	applyEnvVars(cfg)

	return cfg, nil
}

// loadFile loads and parses the config file.
// Returns nil if no config file exists (not an error).
func (l *Loader) loadFile() (*FileConfig, error) {
	configPath := l.configPath
	if configPath == "" {
		dataDir := l.dataDir
		if dataDir == "" {
			dataDir = DefaultDataDir()
		}
		configPath = filepath.Join(dataDir, ConfigFileName)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No config file is OK
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileCfg FileConfig
	if err := toml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("invalid TOML in %s: %w", configPath, err)
	}

	return &fileCfg, nil
}

// mergeFileConfig merges non-nil FileConfig values into Config.
func mergeFileConfig(cfg *Config, file *FileConfig) {
	// Server
	if file.Server.Listen != nil {
		cfg.Server.Listen = *file.Server.Listen
	}
	if file.Server.DataDir != nil {
		cfg.Server.DataDir = *file.Server.DataDir
	}
	if file.Server.LogLevel != nil {
		cfg.Server.LogLevel = *file.Server.LogLevel
	}
	if file.Server.Workers != nil {
		cfg.Server.Workers = *file.Server.Workers
	}
	if file.Server.Foreground != nil {
		cfg.Server.Foreground = *file.Server.Foreground
	}

	// Engine
	if file.Engine.ScenariosDir != nil {
		cfg.Engine.ScenariosDir = *file.Engine.ScenariosDir
	}
	if file.Engine.ArchivesDir != nil {
		cfg.Engine.ArchivesDir = *file.Engine.ArchivesDir
	}
	if file.Engine.RetainFailed != nil {
		cfg.Engine.RetainFailed = *file.Engine.RetainFailed
	}
	if file.Engine.OutputLimitBytes != nil {
		cfg.Engine.OutputLimitBytes = *file.Engine.OutputLimitBytes
	}

	// Timeouts (parse duration strings)
	if file.Timeouts.Shutdown != nil {
		if d, err := time.ParseDuration(*file.Timeouts.Shutdown); err == nil {
			cfg.Timeouts.Shutdown = d
		}
	}
	if file.Timeouts.Validation != nil {
		if d, err := time.ParseDuration(*file.Timeouts.Validation); err == nil {
			cfg.Timeouts.Validation = d
		}
	}
	if file.Timeouts.Download != nil {
		if d, err := time.ParseDuration(*file.Timeouts.Download); err == nil {
			cfg.Timeouts.Download = d
		}
	}
}

// applyEnvVars applies environment variable overrides to config.
func applyEnvVars(cfg *Config) {
	if v := os.Getenv(EnvListen); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.Server.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Server.Workers = i
		}
	}
	if v := os.Getenv(EnvForeground); v != "" {
		cfg.Server.Foreground = v == "true" || v == "1"
	}
	if v := os.Getenv(EnvScenariosDir); v != "" {
		cfg.Engine.ScenariosDir = v
	}
	if v := os.Getenv(EnvArchivesDir); v != "" {
		cfg.Engine.ArchivesDir = v
	}
	if v := os.Getenv(EnvRetainFailed); v != "" {
		cfg.Engine.RetainFailed = v == "true" || v == "1"
	}
	if v := os.Getenv(EnvOutputLimit); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Engine.OutputLimitBytes = i
		}
	}
	if v := os.Getenv(EnvShutdownTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeouts.Shutdown = d
		}
	}
	if v := os.Getenv(EnvValidationTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeouts.Validation = d
		}
	}
	if v := os.Getenv(EnvDownloadTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeouts.Download = d
		}
	}
}
