// Package config provides configuration management for the dev server using
// Viper, loading from YAML files, environment variables, and command-line
// flags.
//
// Precedence (highest first): command-line flags, LIVESERVE_* environment
// variables, the .liveserve.yml file, built-in defaults.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	devErrors "github.com/conneroisu/liveserve/internal/errors"
)

// Config is the root configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Watch  WatchConfig  `yaml:"watch"`
	Build  BuildConfig  `yaml:"build"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds the WebSocket listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns the host:port bind address.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WatchConfig holds the file-watching settings. An empty Extensions list
// watches every file under Paths.
type WatchConfig struct {
	Paths      []string      `yaml:"paths"`
	Extensions []string      `yaml:"extensions"`
	Debounce   time.Duration `yaml:"debounce"`
}

// BuildConfig holds the optional command run on each change batch. Success
// broadcasts a reload; failure broadcasts the command output as an error.
type BuildConfig struct {
	Command string `yaml:"command"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 7331,
		},
		Watch: WatchConfig{
			Paths:    []string{"."},
			Debounce: 100 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load resolves the configuration from viper's current state and fills in
// defaults for anything unset.
func Load() (*Config, error) {
	config := Default()

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyDefaults restores defaults that an explicit empty value in the config
// file would otherwise wipe out.
func applyDefaults(config *Config) {
	defaults := Default()

	if config.Server.Host == "" {
		config.Server.Host = defaults.Server.Host
	}
	if config.Server.Port == 0 {
		config.Server.Port = defaults.Server.Port
	}
	if len(config.Watch.Paths) == 0 {
		config.Watch.Paths = defaults.Watch.Paths
	}
	if config.Watch.Debounce <= 0 {
		config.Watch.Debounce = defaults.Watch.Debounce
	}
	if config.Log.Level == "" {
		config.Log.Level = defaults.Log.Level
	}
	if config.Log.Format == "" {
		config.Log.Format = defaults.Log.Format
	}
}

// Validate checks the resolved configuration for values the server cannot
// run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return devErrors.NewConfigError("server.port", fmt.Sprintf("must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.Host == "" {
		return devErrors.NewConfigError("server.host", "must not be empty")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return devErrors.NewConfigError("log.format", fmt.Sprintf("must be text or json, got %q", c.Log.Format))
	}
	for _, path := range c.Watch.Paths {
		if path == "" {
			return devErrors.NewConfigError("watch.paths", "must not contain empty entries")
		}
	}

	return nil
}
