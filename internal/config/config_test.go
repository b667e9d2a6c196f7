package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); !errors.Is(err, ErrNoDatabase) {
		t.Fatalf("Load error = %v, want ErrNoDatabase", err)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", " postgres://localhost/genstudio ")
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("CLI_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/genstudio" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.Env != "production" || cfg.LogLevel != "warn" {
		t.Fatalf("Env/LogLevel = %q/%q", cfg.Env, cfg.LogLevel)
	}
	if cfg.Timeout != 5*time.Second {
		t.Fatalf("Timeout = %s, want 5s", cfg.Timeout)
	}
}

func TestLoadIgnoresInvalidTimeout(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://localhost/genstudio")
	t.Setenv("CLI_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("Timeout = %s, want default 30s", cfg.Timeout)
	}
}
