// internal/daemon/config/validate.go
package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidLogLevels are the allowed log level values.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration and returns an error if invalid.
func Validate(cfg *Config) error {
	var errs []string

	validLevel := false
	for _, level := range ValidLogLevels {
		if cfg.Server.LogLevel == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		errs = append(errs, fmt.Sprintf("invalid log_level %q (must be one of: %s)",
			cfg.Server.LogLevel, strings.Join(ValidLogLevels, ", ")))
	}

	if cfg.Server.Workers < 1 {
		errs = append(errs, "workers must be at least 1")
	}

	if cfg.Server.Listen == "" {
		errs = append(errs, "listen address must not be empty")
	} else if _, _, err := net.SplitHostPort(cfg.Server.Listen); err != nil {
		errs = append(errs, fmt.Sprintf("invalid listen address %q: %v", cfg.Server.Listen, err))
	}

	if cfg.Engine.ScenariosDir == "" {
		errs = append(errs, "scenarios_dir must not be empty")
	}
	if cfg.Engine.ArchivesDir == "" {
		errs = append(errs, "archives_dir must not be empty")
	}
	if cfg.Engine.OutputLimitBytes < 1 {
		errs = append(errs, "output_limit_bytes must be positive")
	}

	if cfg.Timeouts.Shutdown < 0 {
		errs = append(errs, "shutdown timeout must be non-negative")
	}
	if cfg.Timeouts.Validation <= 0 {
		errs = append(errs, "validation timeout must be positive")
	}
	if cfg.Timeouts.Download <= 0 {
		errs = append(errs, "download timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
