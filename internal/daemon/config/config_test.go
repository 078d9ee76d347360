package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Listen != "127.0.0.1:6060" {
		t.Errorf("unexpected default listen: %s", cfg.Server.Listen)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("unexpected default log level: %s", cfg.Server.LogLevel)
	}
	if cfg.Engine.OutputLimitBytes != 1<<20 {
		t.Errorf("unexpected default output limit: %d", cfg.Engine.OutputLimitBytes)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	dataDir := t.TempDir()
	cfg, err := NewLoader(dataDir, "").Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.DataDir != dataDir {
		t.Errorf("expected data dir %s, got %s", dataDir, cfg.Server.DataDir)
	}
	// Derived directories follow the data dir.
	if cfg.Engine.ScenariosDir != filepath.Join(dataDir, "scenarios") {
		t.Errorf("unexpected scenarios dir: %s", cfg.Engine.ScenariosDir)
	}
	if cfg.Engine.ArchivesDir != filepath.Join(dataDir, "archives") {
		t.Errorf("unexpected archives dir: %s", cfg.Engine.ArchivesDir)
	}
}

func TestLoadMergesFile(t *testing.T) {
	dataDir := t.TempDir()
	contents := `
[server]
listen = "0.0.0.0:7070"
workers = 4

[engine]
retain_failed = true

[timeouts]
validation = "30s"
`
	if err := os.WriteFile(filepath.Join(dataDir, ConfigFileName), []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader(dataDir, "").Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Listen != "0.0.0.0:7070" {
		t.Errorf("listen not merged: %s", cfg.Server.Listen)
	}
	if cfg.Server.Workers != 4 {
		t.Errorf("workers not merged: %d", cfg.Server.Workers)
	}
	if !cfg.Engine.RetainFailed {
		t.Error("retain_failed not merged")
	}
	if cfg.Timeouts.Validation != 30*time.Second {
		t.Errorf("validation timeout not merged: %v", cfg.Timeouts.Validation)
	}
	// Unset values keep their defaults.
	if cfg.Server.LogLevel != "info" {
		t.Errorf("log level lost its default: %s", cfg.Server.LogLevel)
	}
}

func TestLoadExplicitConfigPath(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(t.TempDir(), "custom.toml")
	if err := os.WriteFile(path, []byte("[server]\nlog_level = \"debug\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader(dataDir, path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("explicit config file not applied: %s", cfg.Server.LogLevel)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, ConfigFileName), []byte("not [valid toml"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewLoader(dataDir, "").Load(); err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, ConfigFileName), []byte("[server]\nworkers = 4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvWorkers, "8")
	t.Setenv(EnvRetainFailed, "true")

	cfg, err := NewLoader(dataDir, "").Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Workers != 8 {
		t.Errorf("env did not override file: %d", cfg.Server.Workers)
	}
	if !cfg.Engine.RetainFailed {
		t.Error("env retain_failed not applied")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"bad log level":    func(c *Config) { c.Server.LogLevel = "loud" },
		"zero workers":     func(c *Config) { c.Server.Workers = 0 },
		"empty listen":     func(c *Config) { c.Server.Listen = "" },
		"bad listen":       func(c *Config) { c.Server.Listen = "no-port" },
		"zero output cap":  func(c *Config) { c.Engine.OutputLimitBytes = 0 },
		"zero validation":  func(c *Config) { c.Timeouts.Validation = 0 },
		"negative timeout": func(c *Config) { c.Timeouts.Shutdown = -time.Second },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
