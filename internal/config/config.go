// Package config loads the small environment surface of the admin tools.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is what the migrate, credits and providertoken commands need.
type Config struct {
	DatabaseURL string
	Env         string
	LogLevel    string
	Timeout     time.Duration
}

// ErrNoDatabase is returned when DATABASE_URL is unset.
var ErrNoDatabase = errors.New("DATABASE_URL is required")

func Load() (Config, error) {
	// Missing env files are fine.
	_ = godotenv.Load(".env", ".env.local")

	c := Config{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Env:         getenv("APP_ENV", "development"),
		LogLevel:    strings.ToLower(os.Getenv("LOG_LEVEL")),
		Timeout:     30 * time.Second,
	}
	if raw := os.Getenv("CLI_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			c.Timeout = d
		}
	}
	if c.DatabaseURL == "" {
		return c, ErrNoDatabase
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
