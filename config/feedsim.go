package config

import (
	"os"
	"strconv"
	"time"
)

// FeedSimConfig holds the feed simulator's server configuration.
type FeedSimConfig struct {
	Addr            string        `json:"addr"`
	PushInterval    time.Duration `json:"push_interval"`
	MaxConnections  int           `json:"max_connections"`
	PingInterval    int           `json:"ping_interval_seconds"`
	WriteTimeout    int           `json:"write_timeout_seconds"`
	ReadBufferSize  int           `json:"read_buffer_size"`
	WriteBufferSize int           `json:"write_buffer_size"`
}

// DefaultFeedSimConfig returns the default simulator configuration.
func DefaultFeedSimConfig() *FeedSimConfig {
	return &FeedSimConfig{
		Addr:            ":8090",
		PushInterval:    2 * time.Second,
		MaxConnections:  1000,
		PingInterval:    30,
		WriteTimeout:    10,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// FeedSimFromEnv overrides the defaults with FEEDSIM_* variables.
func FeedSimFromEnv() *FeedSimConfig {
	LoadDotEnv()
	cfg := DefaultFeedSimConfig()
	if v := os.Getenv("FEEDSIM_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("FEEDSIM_PUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.PushInterval = d
		}
	}
	if v := os.Getenv("FEEDSIM_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConnections = n
		}
	}
	return cfg
}
