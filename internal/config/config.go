// Package config loads process-wide configuration from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds the sync core configuration.
type Config struct {
	ServerPort      string
	DataDir         string
	APIBaseURL      string
	APIToken        string
	SyncInterval    time.Duration
	MaxRetries      int
	ProbeInterval   time.Duration
	RemoteTimeout   time.Duration
	PullLimit       int
}

// LoadConfig reads configuration from environment variables, applying the
// documented defaults (10 minute sync interval, 5 replay attempts).
func LoadConfig() (*Config, error) {
	intervalMS, err := getEnvInt("SYNC_INTERVAL_MS", 600000)
	if err != nil {
		return nil, errors.New("invalid SYNC_INTERVAL_MS")
	}

	maxRetries, err := getEnvInt("SYNC_MAX_RETRIES", 5)
	if err != nil || maxRetries < 1 {
		return nil, errors.New("invalid SYNC_MAX_RETRIES")
	}

	probeMS, err := getEnvInt("CONNECTIVITY_PROBE_MS", 30000)
	if err != nil {
		return nil, errors.New("invalid CONNECTIVITY_PROBE_MS")
	}

	timeoutMS, err := getEnvInt("REMOTE_TIMEOUT_MS", 30000)
	if err != nil {
		return nil, errors.New("invalid REMOTE_TIMEOUT_MS")
	}

	pullLimit, err := getEnvInt("SYNC_PULL_LIMIT", 500)
	if err != nil {
		return nil, errors.New("invalid SYNC_PULL_LIMIT")
	}

	cfg := &Config{
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		DataDir:       getEnv("DATA_DIR", "./data"),
		APIBaseURL:    os.Getenv("API_BASE_URL"),
		APIToken:      os.Getenv("API_TOKEN"),
		SyncInterval:  time.Duration(intervalMS) * time.Millisecond,
		MaxRetries:    maxRetries,
		ProbeInterval: time.Duration(probeMS) * time.Millisecond,
		RemoteTimeout: time.Duration(timeoutMS) * time.Millisecond,
		PullLimit:     pullLimit,
	}

	if cfg.APIBaseURL == "" {
		return nil, errors.New("API_BASE_URL is required")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}
