// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath      string
	ServerPort        string
	LogLevel          string
	PageSize          int
	MaxAutoFetchPosts int
	CORSAllowedOrigin string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:      envOrDefault("DATABASE_PATH", "./data/community.db"),
		ServerPort:        envOrDefault("SERVER_PORT", "8080"),
		LogLevel:          envOrDefault("LOG_LEVEL", "info"),
		CORSAllowedOrigin: envOrDefault("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
	}

	pageSize, err := envIntOrDefault("PAGE_SIZE", 15)
	if err != nil {
		return nil, err
	}
	if pageSize < 1 {
		return nil, fmt.Errorf("PAGE_SIZE must be positive, got %d", pageSize)
	}
	cfg.PageSize = pageSize

	maxAutoFetch, err := envIntOrDefault("MAX_AUTO_FETCH_POSTS", 150)
	if err != nil {
		return nil, err
	}
	if maxAutoFetch < pageSize {
		return nil, fmt.Errorf("MAX_AUTO_FETCH_POSTS (%d) must be at least PAGE_SIZE (%d)", maxAutoFetch, pageSize)
	}
	cfg.MaxAutoFetchPosts = maxAutoFetch

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q for %s: %w", v, key, err)
	}
	return i, nil
}
