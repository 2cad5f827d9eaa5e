package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the global ~/.emchat/config.toml.
type Config struct {
	// ServerURL is the base URL of the employee-management backend,
	// e.g. "https://ems.example.com". Required for login.
	ServerURL string `toml:"server_url"`
	// PushURL is the websocket push endpoint. Empty derives it from
	// ServerURL ("https://host" -> "wss://host/ws").
	PushURL string `toml:"push_url"`
	// DefaultProfile names the profile used when --profile is not given.
	DefaultProfile string `toml:"default_profile"`
}

// Load reads config from the given path. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ResolvePushURL returns the configured push URL, deriving one from the
// server URL when unset.
func (c *Config) ResolvePushURL() (string, error) {
	if c.PushURL != "" {
		return c.PushURL, nil
	}
	if c.ServerURL == "" {
		return "", fmt.Errorf("neither push_url nor server_url configured")
	}
	u := c.ServerURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	default:
		return "", fmt.Errorf("server_url %q has no http scheme", c.ServerURL)
	}
	return strings.TrimRight(u, "/") + "/ws", nil
}
