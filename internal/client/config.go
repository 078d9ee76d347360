// internal/client/config.go
package client

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvServer overrides the daemon address for one invocation.
const EnvServer = "BUGZOO_SERVER"

// ClientConfig represents the bugzoo CLI configuration stored in
// ~/.bugzoo/config.yaml.
type ClientConfig struct {
	// Server is the bugzood address (host:port). Empty uses the
	// default loopback address.
	Server string `yaml:"server,omitempty"`
}

// configFilePath returns the path to the config file (~/.bugzoo/config.yaml).
func configFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".bugzoo", "config.yaml"), nil
}

// LoadConfig reads the client configuration. A missing file yields an
// empty config, not an error.
func LoadConfig() (*ClientConfig, error) {
	path, err := configFilePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &ClientConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to ~/.bugzoo/config.yaml.
func (c *ClientConfig) Save() error {
	path, err := configFilePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ResolveAddress picks the daemon address: environment variable, then
// config file, then the default loopback address.
func ResolveAddress() (string, error) {
	if addr := os.Getenv(EnvServer); addr != "" {
		return addr, nil
	}

	cfg, err := LoadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Server != "" {
		return cfg.Server, nil
	}
	return DefaultAddress, nil
}
