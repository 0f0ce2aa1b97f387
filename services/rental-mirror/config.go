package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration for the rental mirror service.
type Config struct {
	ListenAddress string
	NodeURL       string
	NodeAuthToken string
	DatabasePath  string
	PollInterval  time.Duration
	BatchSize     int
}

// LoadConfigFromEnv builds a configuration using environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		ListenAddress: getenvDefault("RENTAL_MIRROR_LISTEN", ":8790"),
		NodeURL:       os.Getenv("RENTAL_MIRROR_NODE_URL"),
		NodeAuthToken: os.Getenv("RENTAL_MIRROR_NODE_TOKEN"),
		DatabasePath:  getenvDefault("RENTAL_MIRROR_DB_PATH", "rental-mirror.db"),
		PollInterval:  5 * time.Second,
		BatchSize:     100,
	}

	if raw := strings.TrimSpace(os.Getenv("RENTAL_MIRROR_POLL_INTERVAL")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse RENTAL_MIRROR_POLL_INTERVAL: %w", err)
		}
		if dur <= 0 {
			return Config{}, errors.New("RENTAL_MIRROR_POLL_INTERVAL must be positive")
		}
		cfg.PollInterval = dur
	}

	if raw := strings.TrimSpace(os.Getenv("RENTAL_MIRROR_BATCH")); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse RENTAL_MIRROR_BATCH: %w", err)
		}
		if val <= 0 {
			return Config{}, errors.New("RENTAL_MIRROR_BATCH must be positive")
		}
		cfg.BatchSize = val
	}

	if cfg.NodeURL == "" {
		return Config{}, errors.New("RENTAL_MIRROR_NODE_URL is required")
	}

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
