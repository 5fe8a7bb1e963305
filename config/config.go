package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds optional file-based settings. Command-line flags and
// environment variables take precedence over values loaded here.
type Config struct {
	// Database is the SQLite file location.
	Database string `toml:"database"`

	// Port the HTTP server listens on.
	Port int `toml:"port"`

	// PublicURL is the externally reachable base URL, used to build
	// OAuth redirect URIs.
	PublicURL string `toml:"public_url"`

	// IntervalMinutes between scheduled pipeline runs.
	IntervalMinutes int `toml:"interval_minutes"`

	// Admin credentials protecting the JSON API.
	AdminUser     string `toml:"admin_user"`
	AdminPassword string `toml:"admin_password"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}
