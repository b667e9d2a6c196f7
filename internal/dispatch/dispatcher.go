package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/queue"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// CreateJobInput is a validated, priced generation request.
type CreateJobInput struct {
	OwnerID        string
	Kind           domain.JobKind
	Prompt         string
	InputAssetRefs []string
	TemplateID     string
	Params         domain.JobParams
	Locale         string
	Cost           int64
}

// Dispatcher accepts paid generation requests: it debits the owner, records
// the job and hands it to the queue.
type Dispatcher struct {
	jobs     domain.JobRepository
	credits  domain.CreditLedger
	producer queue.Producer
	logger   *infra.Logger
	now      func() time.Time
}

func NewDispatcher(jobs domain.JobRepository, credits domain.CreditLedger, producer queue.Producer, logger *infra.Logger) *Dispatcher {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &Dispatcher{
		jobs:     jobs,
		credits:  credits,
		producer: producer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob debits input.Cost, stores the job as queued and enqueues it.
// When the enqueue fails the job is failed and refunded before the error is
// returned, so the owner is never charged for work that was not scheduled.
func (d *Dispatcher) CreateJob(ctx context.Context, input CreateJobInput) (string, error) {
	job, err := d.newJob(input)
	if err != nil {
		return "", err
	}

	if err := d.jobs.CreateWithDebit(ctx, job); err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return "", err
		}
		return "", fmt.Errorf("create job: %w", err)
	}

	message := domain.QueueMessage{
		JobID:       job.ID,
		Kind:        job.Kind,
		Attempt:     0,
		RequestedAt: d.now(),
	}
	handle, err := d.producer.Enqueue(ctx, message)
	if err != nil {
		d.compensate(ctx, job, err)
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	d.logger.Info().
		Str("job_id", job.ID).
		Str("owner_id", job.OwnerID).
		Str("kind", string(job.Kind)).
		Int64("cost", job.DebitedAmount).
		Str("queue_handle", handle).
		Msg("job queued")
	return job.ID, nil
}

func (d *Dispatcher) newJob(input CreateJobInput) (*domain.Job, error) {
	ownerID := strings.TrimSpace(input.OwnerID)
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	if !input.Kind.Valid() {
		return nil, fmt.Errorf("%w: unsupported kind %q", domain.ErrInvalidJob, input.Kind)
	}
	refs := make([]string, 0, len(input.InputAssetRefs))
	for _, ref := range input.InputAssetRefs {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}
	if len(refs) > domain.MaxInputAssets {
		return nil, fmt.Errorf("%w: at most %d input assets", domain.ErrInvalidJob, domain.MaxInputAssets)
	}
	if input.Cost <= 0 {
		return nil, fmt.Errorf("%w: cost must be positive", domain.ErrInvalidJob)
	}
	prompt := domain.SanitizePrompt(input.Prompt, domain.MaxUserPromptLength)
	if prompt == "" && len(refs) == 0 {
		return nil, fmt.Errorf("%w: prompt or input asset required", domain.ErrInvalidJob)
	}
	if input.Params.DurationSeconds < 0 {
		return nil, fmt.Errorf("%w: duration must not be negative", domain.ErrInvalidJob)
	}

	return &domain.Job{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		Kind:           input.Kind,
		Prompt:         prompt,
		InputAssetRefs: refs,
		TemplateID:     strings.TrimSpace(input.TemplateID),
		Params:         input.Params,
		Locale:         input.Locale,
		Status:         domain.JobStatusQueued,
		DebitedAmount:  input.Cost,
	}, nil
}

func (d *Dispatcher) compensate(ctx context.Context, job *domain.Job, cause error) {
	// The request context may already be gone; the refund must still land.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	refunded, err := d.jobs.Fail(fctx, job.ID, domain.Failure{
		Message:     "job could not be scheduled, please try again",
		Recoverable: true,
	})
	if err != nil {
		d.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to refund unscheduled job")
		return
	}
	d.logger.Warn().Err(cause).Str("job_id", job.ID).Bool("refunded", refunded).Msg("enqueue failed, job refunded")
}

// GetJob returns the job when it belongs to ownerID. Jobs of other owners are
// reported as not found.
func (d *Dispatcher) GetJob(ctx context.Context, ownerID, jobID string) (*domain.Job, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.ErrUnauthorized
	}
	if _, err := uuid.Parse(strings.TrimSpace(jobID)); err != nil {
		return nil, domain.ErrNotFound
	}
	job, err := d.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

// ListJobs returns the owner's most recent jobs, newest first.
func (d *Dispatcher) ListJobs(ctx context.Context, ownerID string, limit int) ([]domain.Job, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.ErrUnauthorized
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return d.jobs.ListByOwner(ctx, ownerID, limit)
}

func (d *Dispatcher) Balance(ctx context.Context, ownerID string) (int64, error) {
	if strings.TrimSpace(ownerID) == "" {
		return 0, domain.ErrUnauthorized
	}
	return d.credits.Balance(ctx, ownerID)
}
