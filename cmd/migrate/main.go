package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"genstudio/internal/config"
	"genstudio/internal/db"
	"genstudio/internal/infra"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.Env, cfg.LogLevel, "migrate")

	conn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	applied, err := db.Migrate(ctx, conn)
	if err != nil {
		logger.Fatal().Err(err).Int("applied", applied).Msg("migration failed")
	}
	logger.Info().Int("statements", applied).Msg("schema up to date")
}
