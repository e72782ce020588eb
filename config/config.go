// Package config loads the client configuration file: the root mode
// tree plus a small set of connection settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cortesi/hotkey-manager/keymode"
	"github.com/cortesi/hotkey-manager/paths"
)

// Settings are the optional knobs below the mode tree. Zero values
// mean "use the built-in default".
type Settings struct {
	// Socket overrides the default socket path.
	Socket string `yaml:"socket,omitempty"`
	// ServerStartupTimeoutMs overrides how long the client waits for a
	// spawned server to start accepting.
	ServerStartupTimeoutMs int `yaml:"server_startup_timeout_ms,omitempty"`
	// MultiClient opts the spawned server into broadcast mode.
	MultiClient bool `yaml:"multi_client,omitempty"`
}

// ServerStartupTimeout returns the configured timeout, or zero when
// unset.
func (s Settings) ServerStartupTimeout() time.Duration {
	return time.Duration(s.ServerStartupTimeoutMs) * time.Millisecond
}

// Config is the full configuration file.
type Config struct {
	Keys     *keymode.Mode `yaml:"keys"`
	Settings Settings      `yaml:"settings,omitempty"`
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Keys == nil || len(cfg.Keys.Bindings) == 0 {
		return nil, fmt.Errorf("config has no key bindings")
	}
	if err := cfg.Keys.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// DefaultPath returns the per-user configuration file location.
func DefaultPath() (string, error) {
	return paths.ConfigFilePath()
}
