package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"genstudio/internal/classify"
	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/providers/replicate"
	"genstudio/internal/retry"
	"genstudio/internal/storage"
)

const defaultFinalizeTimeout = 30 * time.Second

// Generator runs one prediction to a settled state.
type Generator interface {
	Run(ctx context.Context, model string, input map[string]any) (string, *replicate.Prediction, error)
}

// InputResolver turns a job's input refs into fetchable URLs.
type InputResolver interface {
	Resolve(ctx context.Context, ownerID string, refs []string) ([]string, error)
}

// AssetPersister copies a provider output into durable storage.
type AssetPersister interface {
	Persist(ctx context.Context, jobID string, kind domain.JobKind, remoteURL string) (*storage.StoredAsset, error)
}

type Options struct {
	Jobs      domain.JobRepository
	Templates domain.TemplateRepository
	Inputs    InputResolver
	Generator Generator
	Persister AssetPersister
	// Models maps each kind to its provider model; a template model wins.
	Models          map[domain.JobKind]string
	Retry           retry.Policy
	FinalizeTimeout time.Duration
	Logger          *infra.Logger
}

// Processor drives one job from queued to done or error.
type Processor struct {
	jobs            domain.JobRepository
	templates       domain.TemplateRepository
	inputs          InputResolver
	generator       Generator
	persister       AssetPersister
	models          map[domain.JobKind]string
	policy          retry.Policy
	finalizeTimeout time.Duration
	logger          *infra.Logger
}

func NewProcessor(opts Options) (*Processor, error) {
	if opts.Jobs == nil || opts.Generator == nil || opts.Persister == nil {
		return nil, errors.New("worker: jobs, generator and persister are required")
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	if opts.FinalizeTimeout <= 0 {
		opts.FinalizeTimeout = defaultFinalizeTimeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	return &Processor{
		jobs:            opts.Jobs,
		templates:       opts.Templates,
		inputs:          opts.Inputs,
		generator:       opts.Generator,
		persister:       opts.Persister,
		models:          opts.Models,
		policy:          opts.Retry,
		finalizeTimeout: opts.FinalizeTimeout,
		logger:          logger,
	}, nil
}

// Handle adapts Process to a queue handler.
func (p *Processor) Handle(ctx context.Context, message domain.QueueMessage) error {
	return p.Process(ctx, message.JobID)
}

// Process runs the job if it is still queued. It returns an error only when
// the job could not be loaded or claimed; every failure after the claim ends
// in a failed and refunded job instead.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	job, err := p.jobs.GetByID(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		p.logger.Warn().Str("job_id", jobID).Msg("job not found, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status != domain.JobStatusQueued {
		p.logger.Debug().Str("job_id", jobID).Str("status", string(job.Status)).Msg("job already picked up, skipping")
		return nil
	}

	claimed, err := p.jobs.MarkProcessing(ctx, jobID)
	if err != nil {
		return fmt.Errorf("claim job %s: %w", jobID, err)
	}
	if !claimed {
		p.logger.Debug().Str("job_id", jobID).Msg("lost claim race, skipping")
		return nil
	}

	p.run(ctx, job)
	return nil
}

type progress struct {
	predictionID string
	attempts     int
}

func (p *Processor) run(ctx context.Context, job *domain.Job) {
	log := p.logger.With().Str("job_id", job.ID).Str("owner_id", job.OwnerID).Str("kind", string(job.Kind)).Logger()
	state := &progress{}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("job panicked")
			p.fail(ctx, job, state, &UnexpectedError{Value: r, Stack: debug.Stack()})
		}
	}()

	result, err := p.generate(ctx, job, state, &log)
	if err != nil {
		p.fail(ctx, job, state, err)
		return
	}

	fctx, cancel := p.finalizeContext(ctx)
	defer cancel()
	if err := p.jobs.MarkDone(fctx, job.ID, *result); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Warn().Msg("job finalized elsewhere, dropping result")
			return
		}
		p.fail(ctx, job, state, fmt.Errorf("mark done: %w", err))
		return
	}
	log.Info().
		Str("prediction_id", state.predictionID).
		Int("attempt", state.attempts).
		Str("asset_ref", result.AssetRef).
		Dur("elapsed", time.Since(start)).
		Msg("job done")
}

func (p *Processor) generate(ctx context.Context, job *domain.Job, state *progress, log *zerolog.Logger) (*domain.Result, error) {
	var tmpl *domain.Template
	if job.TemplateID != "" && p.templates != nil {
		t, err := p.templates.GetByID(ctx, job.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("load template %s: %w", job.TemplateID, err)
		}
		tmpl = t
	}

	model := p.models[job.Kind]
	params := job.Params
	if tmpl != nil {
		if tmpl.Model != "" {
			model = tmpl.Model
		}
		params = mergeParams(job.Params, tmpl.Params)
	}
	if model == "" {
		return nil, fmt.Errorf("%w: no model configured for kind %s", domain.ErrInvalidJob, job.Kind)
	}
	prompt := domain.ComposePrompt(tmpl, job.Prompt)

	var inputURLs []string
	if len(job.InputAssetRefs) > 0 {
		if p.inputs == nil {
			return nil, errors.New("input assets given but no resolver configured")
		}
		urls, err := p.inputs.Resolve(ctx, job.OwnerID, job.InputAssetRefs)
		if err != nil {
			return nil, fmt.Errorf("resolve input assets: %w", err)
		}
		inputURLs = urls
	}
	if prompt == "" && len(inputURLs) == 0 {
		return nil, fmt.Errorf("%w: nothing to generate from", domain.ErrInvalidJob)
	}

	input := buildInput(job.Kind, prompt, inputURLs, params)

	policy := p.policy
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Str("prediction_id", state.predictionID).Msg("generation failed, retrying")
	}
	var outputURL string
	attempts, err := retry.Do(ctx, policy, classify.IsRetryable, func(ctx context.Context, attempt int) error {
		state.attempts = attempt
		id, prediction, err := p.generator.Run(ctx, model, input)
		if id != "" {
			state.predictionID = id
		}
		if err != nil {
			return err
		}
		outputURL = prediction.OutputURL()
		if outputURL == "" {
			return fmt.Errorf("prediction %s succeeded without output", id)
		}
		return nil
	})
	state.attempts = attempts
	if err != nil {
		return nil, err
	}

	stored, err := p.persister.Persist(ctx, job.ID, job.Kind, outputURL)
	if err != nil {
		return nil, err
	}
	return &domain.Result{
		AssetRef:     stored.Key,
		URL:          stored.URL,
		ContentType:  stored.ContentType,
		Bytes:        stored.Size,
		PredictionID: state.predictionID,
		Attempts:     attempts,
	}, nil
}

// fail records the classified failure and refunds the job.
func (p *Processor) fail(ctx context.Context, job *domain.Job, state *progress, cause error) {
	res := classify.ClassifyFor(cause, job.Locale)

	fctx, cancel := p.finalizeContext(ctx)
	defer cancel()
	refunded, err := p.jobs.Fail(fctx, job.ID, domain.Failure{
		Message:      res.Message,
		Recoverable:  res.Recoverable,
		PredictionID: state.predictionID,
		Attempts:     state.attempts,
	})
	event := p.logger.Warn()
	if err != nil {
		event = p.logger.Error().AnErr("finalize_error", err)
	}
	event.Err(cause).
		Str("job_id", job.ID).
		Str("owner_id", job.OwnerID).
		Str("kind", string(job.Kind)).
		Str("prediction_id", state.predictionID).
		Int("attempt", state.attempts).
		Str("class", res.Class.String()).
		Str("category", string(res.Category)).
		Bool("recoverable", res.Recoverable).
		Bool("refunded", refunded).
		Msg("job failed")
}

// finalizeContext keeps the parent's values but not its cancellation, so a
// worker shutting down still records the outcome.
func (p *Processor) finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), p.finalizeTimeout)
}
