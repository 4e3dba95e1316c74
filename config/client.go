// Package config holds railbook's runtime configuration.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// ClientConfig holds the terminal client's configuration.
type ClientConfig struct {
	BaseURL        string        `json:"base_url"`
	FeedURL        string        `json:"feed_url"`
	MaxConns       int           `json:"max_conns"`
	CredentialFile string        `json:"credential_file"`
	RequestTimeout time.Duration `json:"request_timeout"`
	LogLevel       string        `json:"log_level"`
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:        "http://localhost:8080",
		MaxConns:       8,
		CredentialFile: defaultCredentialFile(),
		RequestTimeout: 10 * time.Second,
		LogLevel:       "info",
	}
}

// FromEnv loads an optional .env file, then overrides the defaults with
// RAILBOOK_* environment variables. Unparseable values are ignored.
func FromEnv() *ClientConfig {
	LoadDotEnv()
	cfg := DefaultConfig()

	if v := os.Getenv("RAILBOOK_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("RAILBOOK_FEED_URL"); v != "" {
		cfg.FeedURL = v
	}
	if v := os.Getenv("RAILBOOK_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConns = n
		}
	}
	if v := os.Getenv("RAILBOOK_CREDENTIAL_FILE"); v != "" {
		cfg.CredentialFile = v
	}
	if v := os.Getenv("RAILBOOK_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
		}
	}
	if v := os.Getenv("RAILBOOK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg
}

// Feed returns the live feed base URL, falling back to BaseURL.
func (c *ClientConfig) Feed() string {
	if c.FeedURL != "" {
		return c.FeedURL
	}
	return c.BaseURL
}

// Level parses LogLevel, defaulting to info.
func (c *ClientConfig) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// LoadDotEnv reads .env from the working directory if present. Variables
// already set in the environment win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func defaultCredentialFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "railbook", "credential.yaml")
}
