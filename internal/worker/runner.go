package worker

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"genstudio/internal/infra"
	"genstudio/internal/queue"
)

// Runner feeds queue deliveries to a Processor from Concurrency loops.
type Runner struct {
	consumer     queue.Consumer
	processor    *Processor
	concurrency  int
	restartDelay time.Duration
	logger       *infra.Logger
}

func NewRunner(consumer queue.Consumer, processor *Processor, concurrency int, logger *infra.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &Runner{
		consumer:     consumer,
		processor:    processor,
		concurrency:  concurrency,
		restartDelay: 2 * time.Second,
		logger:       logger,
	}
}

// Run blocks until ctx is done or the queue is closed.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.concurrency; i++ {
		loop := i
		g.Go(func() error {
			r.loop(gctx, loop)
			return nil
		})
	}
	r.logger.Info().Int("concurrency", r.concurrency).Msg("worker started")
	err := g.Wait()
	r.logger.Info().Msg("worker stopped")
	return err
}

func (r *Runner) loop(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := r.consumer.Consume(ctx, r.processor.Handle)
		if err == nil || ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
			return
		}
		r.logger.Error().Err(err).Int("loop", id).Msg("worker consume loop error")

		timer := time.NewTimer(r.restartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
