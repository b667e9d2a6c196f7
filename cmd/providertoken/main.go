package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"genstudio/internal/config"
	"genstudio/internal/infra"
	"genstudio/internal/infra/credentials"
)

func main() {
	var (
		tokenFlag string
		labelFlag string
	)
	flag.StringVar(&tokenFlag, "token", "", "Replicate API token (fallbacks to REPLICATE_API_TOKEN)")
	flag.StringVar(&labelFlag, "label", "", "optional label stored alongside the token")
	flag.Parse()

	token := strings.TrimSpace(tokenFlag)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("REPLICATE_API_TOKEN"))
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "Replicate API token is required via -token or REPLICATE_API_TOKEN")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", cfg.LogLevel, "").With().Str("cmd", "providertoken").Str("provider", credentials.ProviderReplicate).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	var props map[string]any
	if label := strings.TrimSpace(labelFlag); label != "" {
		props = map[string]any{"label": label}
	}
	if err := store.SetReplicateToken(ctx, token, props); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist replicate token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Replicate API token stored successfully")
}
