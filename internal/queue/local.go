package queue

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
)

// LocalQueue is an in-process queue used when no broker is configured.
type LocalQueue struct {
	ch          chan domain.QueueMessage
	maxAttempts int
	retryDelay  time.Duration
	logger      *infra.Logger

	mu     sync.Mutex
	closed bool
	dlq    []domain.QueueMessage
}

func NewLocalQueue(bufferSize, maxAttempts int, logger *infra.Logger) *LocalQueue {
	if bufferSize <= 0 {
		bufferSize = 512
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &LocalQueue{
		ch:          make(chan domain.QueueMessage, bufferSize),
		maxAttempts: maxAttempts,
		retryDelay:  500 * time.Millisecond,
		logger:      logger,
	}
}

// Enqueue never blocks; a full buffer is reported as ErrQueueFull.
func (q *LocalQueue) Enqueue(ctx context.Context, message domain.QueueMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrClosed
	}
	select {
	case q.ch <- message:
		return uuid.NewString(), nil
	default:
		return "", ErrQueueFull
	}
}

func (q *LocalQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message, ok := <-q.ch:
			if !ok {
				return ErrClosed
			}
			err := handler(ctx, message)
			if err == nil {
				continue
			}

			message.Attempt++
			if message.Attempt >= q.maxAttempts {
				q.mu.Lock()
				q.dlq = append(q.dlq, message)
				q.mu.Unlock()
				q.logger.Error().Err(err).Str("job_id", message.JobID).Int("attempt", message.Attempt).Msg("local queue moved message to DLQ")
				continue
			}

			q.logger.Warn().Err(err).Str("job_id", message.JobID).Int("attempt", message.Attempt).Msg("local queue redelivering message")
			delay := time.Duration(message.Attempt) * q.retryDelay
			go func(retryMessage domain.QueueMessage) {
				timer := time.NewTimer(delay)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					return
				case <-timer.C:
					if _, err := q.Enqueue(ctx, retryMessage); err != nil {
						q.logger.Error().Err(err).Str("job_id", retryMessage.JobID).Msg("local queue redelivery dropped")
					}
				}
			}(message)
		}
	}
}

// DLQ returns the messages that exhausted their deliveries.
func (q *LocalQueue) DLQ() []domain.QueueMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.QueueMessage(nil), q.dlq...)
}

// Close stops accepting messages and ends consumers once the buffer drains.
func (q *LocalQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}

var _ Queue = (*LocalQueue)(nil)
