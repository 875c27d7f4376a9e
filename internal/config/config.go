package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrMissingCredentials is returned when the OAuth client credentials are
// supplied neither by the config file nor by the environment. No network
// call is made in that case.
var ErrMissingCredentials = errors.New("client_id and client_secret must be set in the config file")

// Config application configuration
type Config struct {
	// OAuth client credentials
	ClientID     string `toml:"client_id" env:"CLIENT_ID"`
	ClientSecret string `toml:"client_secret" env:"CLIENT_SECRET"`

	// IMAP
	IMAPServer      string        `toml:"imap_server" env:"IMAP_SERVER"` // host:port
	IMAPDialTimeout time.Duration `toml:"-" env:"IMAP_DIAL_TIMEOUT"`

	// OAuth HTTP calls
	HTTPTimeout time.Duration `toml:"-" env:"HTTP_TIMEOUT"`

	// Logging
	LogFormat string `toml:"-" env:"LOG_FORMAT"` // "json" or "text"
}

// DefaultPath returns the canonical config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "gmail-archiver", "config.toml"), nil
}

// Load reads the TOML config file at path, then applies environment
// overrides. A missing config file is not an error; missing credentials are.
func Load(path string) (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.IMAPServer == "" {
		cfg.IMAPServer = "imap.gmail.com:993"
	}
	if cfg.IMAPDialTimeout == 0 {
		cfg.IMAPDialTimeout = 30 * time.Second
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}

	return cfg, nil
}
