// Package bootstrap wires configuration into the stores, queue and storage
// backends shared by the api and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"genstudio/internal/adapter/memory"
	"genstudio/internal/adapter/repo"
	"genstudio/internal/dispatch"
	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/infra/credentials"
	"genstudio/internal/pricing"
	"genstudio/internal/providers/replicate"
	"genstudio/internal/queue"
	"genstudio/internal/retry"
	"genstudio/internal/storage"
	"genstudio/internal/worker"
)

// Services holds the long-lived dependencies of one process.
type Services struct {
	Config *infra.Config
	Logger *infra.Logger

	Jobs      domain.JobRepository
	Credits   domain.CreditLedger
	Templates domain.TemplateRepository
	Assets    domain.AssetRepository
	Queue     queue.Queue
	Storage   storage.Backend
	// Files is set when assets live on the local filesystem.
	Files *storage.FileStore
	// Tokens is nil for the in-memory store.
	Tokens *credentials.Store

	pool    *pgxpool.Pool
	closers []func()
}

// Open connects every backend cfg selects. On error, anything already
// opened is closed.
func Open(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	s := &Services{Config: cfg, Logger: logger}

	if err := s.openStore(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.openStorage(ctx); err != nil {
		s.Close()
		return nil, err
	}

	q, err := queue.New(ctx, cfg, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open queue: %w", err)
	}
	s.Queue = q
	s.closers = append(s.closers, func() {
		if err := q.Close(); err != nil {
			logger.Warn().Err(err).Msg("queue close failed")
		}
	})

	logger.Info().
		Str("store", cfg.StoreDriver).
		Str("queue", cfg.QueueDriver).
		Str("storage", cfg.StorageDriver).
		Msg("backends ready")
	return s, nil
}

func (s *Services) openStore(ctx context.Context) error {
	switch s.Config.StoreDriver {
	case "memory":
		store := memory.NewStore()
		s.Jobs = store.Jobs()
		s.Credits = store.Credits()
		s.Templates = store.Templates()
		s.Assets = store.Assets()
		s.Logger.Warn().Msg("using in-memory store; state is lost on restart")
		return nil
	case "", "postgres":
		pool, err := infra.NewDBPool(ctx, s.Config)
		if err != nil {
			return err
		}
		s.pool = pool
		s.closers = append(s.closers, pool.Close)

		runner := infra.NewSQLRunner(pool, *s.Logger)
		ledger := repo.NewCreditLedger(runner)
		s.Jobs = repo.NewJobRepository(runner, ledger)
		s.Credits = ledger
		s.Templates = repo.NewTemplateRepository(runner)
		s.Assets = repo.NewAssetRepository(runner)
		s.Tokens = credentials.NewStore(runner)
		return nil
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", s.Config.StoreDriver)
	}
}

func (s *Services) openStorage(ctx context.Context) error {
	cfg := s.Config
	switch cfg.StorageDriver {
	case "", "filesystem":
		files, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
		if err != nil {
			return err
		}
		s.Files = files
		s.Storage = files
		return nil
	case "s3":
		store, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
		if err != nil {
			return err
		}
		s.Storage = store
		return nil
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}

// Checks returns the readiness checks for the open backends.
func (s *Services) Checks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if s.pool != nil {
		checks["database"] = s.pool.Ping
	}
	if p, ok := s.Queue.(queue.Pinger); ok {
		checks["queue"] = p.Ping
	}
	return checks
}

// Pricing builds the cost catalog from the configured per-kind costs.
func (s *Services) Pricing() *pricing.Catalog {
	return pricing.NewCatalog(map[domain.JobKind]int64{
		domain.JobKindImage: s.Config.ImageCost,
		domain.JobKindVideo: s.Config.VideoCost,
		domain.JobKindCard:  s.Config.CardCost,
	}, s.Templates)
}

// Dispatcher builds the job-creation service on top of the open store and queue.
func (s *Services) Dispatcher() *dispatch.Dispatcher {
	return dispatch.NewDispatcher(s.Jobs, s.Credits, s.Queue, s.Logger)
}

// Processor builds the job processor with a provider client whose token
// comes from config or, failing that, the integration_tokens table.
func (s *Services) Processor(ctx context.Context) (*worker.Processor, error) {
	cfg := s.Config
	token, err := credentials.ResolveToken(ctx, s.Tokens, cfg.ReplicateAPIToken)
	if err != nil {
		return nil, fmt.Errorf("load provider token: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.ProviderRatePerSec > 0 {
		burst := cfg.ProviderRateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.ProviderRatePerSec), burst)
	}

	client, err := replicate.NewClient(replicate.Options{
		APIToken:         token,
		BaseURL:          cfg.ReplicateBaseURL,
		VersionOverrides: cfg.ModelVersions,
		PollInterval:     cfg.PollInterval,
		MaxPollAttempts:  cfg.PollMaxAttempts,
		RequestTimeout:   cfg.ProviderHTTPTimeout,
		Logger:           s.Logger,
		Limiter:          limiter,
	})
	if err != nil {
		return nil, err
	}

	persister := storage.NewPersister(s.Storage, storage.PersisterOptions{
		HTTPClient: &http.Client{Timeout: cfg.ProviderHTTPTimeout},
		MaxBytes:   cfg.MaxAssetBytes,
		Logger:     s.Logger,
	})

	models := map[domain.JobKind]string{}
	for _, kind := range []domain.JobKind{domain.JobKindImage, domain.JobKindVideo, domain.JobKindCard} {
		if model := strings.TrimSpace(cfg.ModelForKind(string(kind))); model != "" {
			models[kind] = model
		}
	}

	return worker.NewProcessor(worker.Options{
		Jobs:      s.Jobs,
		Templates: s.Templates,
		Inputs:    storage.NewAssetResolver(s.Assets, s.Storage, s.Logger),
		Generator: client,
		Persister: persister,
		Models:    models,
		Retry: retry.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			Multiplier:  2,
		},
		FinalizeTimeout: cfg.FinalizeTimeout,
		Logger:          s.Logger,
	})
}

// Runner builds a worker runner consuming the open queue.
func (s *Services) Runner(ctx context.Context) (*worker.Runner, error) {
	processor, err := s.Processor(ctx)
	if err != nil {
		return nil, err
	}
	return worker.NewRunner(s.Queue, processor, s.Config.WorkerConcurrency, s.Logger), nil
}

// Close releases backends in reverse order of opening.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
