package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"genstudio/internal/dispatch"
	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/middleware"
	"genstudio/internal/pricing"
)

// Jobs is the dispatcher surface the handlers need.
type Jobs interface {
	CreateJob(ctx context.Context, input dispatch.CreateJobInput) (string, error)
	GetJob(ctx context.Context, ownerID, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, ownerID string, limit int) ([]domain.Job, error)
	Balance(ctx context.Context, ownerID string) (int64, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type App struct {
	Jobs    Jobs
	Pricing *pricing.Catalog
	Logger  *infra.Logger
	Checks  map[string]HealthCheck

	idempotency *idempotencyStore
}

func NewApp(jobs Jobs, catalog *pricing.Catalog, logger *infra.Logger) *App {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &App{
		Jobs:        jobs,
		Pricing:     catalog,
		Logger:      logger,
		Checks:      map[string]HealthCheck{},
		idempotency: newIdempotencyStore(),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, r *http.Request, code int, errCode, message string) {
	middleware.WriteError(w, r, code, errCode, message)
}

// fail maps domain errors onto HTTP statuses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		a.error(w, r, http.StatusPaymentRequired, "insufficient_balance", "not enough credits")
	case errors.Is(err, domain.ErrInvalidJob):
		a.error(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, r, http.StatusUnauthorized, "unauthorized", "missing owner context")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, r, http.StatusNotFound, "not_found", "job not found")
	default:
		a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg(action + " failed")
		a.error(w, r, http.StatusInternalServerError, "internal", action+" failed")
	}
}

func (a *App) currentOwnerID(r *http.Request) string {
	return middleware.OwnerIDFromContext(r.Context())
}
