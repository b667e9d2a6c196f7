package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"genstudio/internal/bootstrap"
	"genstudio/internal/http/handlers"
	httpapi "genstudio/internal/http/httpapi"
	"genstudio/internal/infra"
	"genstudio/internal/infra/geoip"
	"genstudio/internal/middleware"
	"genstudio/internal/queue"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel, "api")
	if cfg.JWTSecret == "" {
		logger.Fatal().Msg("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := bootstrap.Open(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open backends")
	}
	defer services.Close()

	geo, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	if geo != nil {
		defer geo.Close()
	}

	app := handlers.NewApp(services.Dispatcher(), services.Pricing(), &logger)
	for name, check := range services.Checks() {
		app.Checks[name] = check
	}

	opts := httpapi.Options{
		Logger: logger,
		JWT: middleware.JWTConfig{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		},
		CORSOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CountryLookup:   geo.Lookup(),
	}
	if services.Files != nil {
		opts.StaticDir = services.Files.BasePath()
	}
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, opts))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Msg("api listening")
		return server.Run(gctx, cfg.HTTPIdleTimeout)
	})

	// The local queue only reaches workers in this process.
	if cfg.WorkerEnabled || cfg.QueueDriver == "local" {
		runner, err := services.Runner(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build worker")
		}
		g.Go(func() error {
			if err := runner.Run(gctx); err != nil && !errors.Is(err, queue.ErrClosed) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("api stopped with error")
		return
	}
	logger.Info().Msg("api stopped")
}
