package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
)

// StreamsConfig configures the Redis Streams backend. ClaimMinIdle is how
// long an entry must sit unacknowledged in another consumer's pending list
// before Consume takes it over. Block bounds a single XREADGROUP wait.
type StreamsConfig struct {
	Addr         string
	Password     string
	DB           int
	Stream       string
	DLQStream    string
	Group        string
	Consumer     string
	MaxAttempts  int
	ClaimMinIdle time.Duration
	Block        time.Duration
	Logger       *infra.Logger
}

// StreamsQueue implements Queue backed by a Redis Streams consumer group.
type StreamsQueue struct {
	client       *redis.Client
	stream       string
	dlqStream    string
	group        string
	consumer     string
	maxAttempts  int
	claimMinIdle time.Duration
	block        time.Duration
	logger       *infra.Logger
}

func NewStreamsQueue(ctx context.Context, cfg StreamsConfig) (*StreamsQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	q := newStreamsQueue(client, cfg)
	if err := q.ensureGroup(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

func newStreamsQueue(client *redis.Client, cfg StreamsConfig) *StreamsQueue {
	if cfg.Stream == "" {
		cfg.Stream = "generation_jobs"
	}
	if cfg.DLQStream == "" {
		cfg.DLQStream = cfg.Stream + "_dlq"
	}
	if cfg.Group == "" {
		cfg.Group = "generation_workers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "worker-1"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ClaimMinIdle <= 0 {
		cfg.ClaimMinIdle = 5 * time.Minute
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &StreamsQueue{
		client:       client,
		stream:       cfg.Stream,
		dlqStream:    cfg.DLQStream,
		group:        cfg.Group,
		consumer:     cfg.Consumer,
		maxAttempts:  cfg.MaxAttempts,
		claimMinIdle: cfg.ClaimMinIdle,
		block:        cfg.Block,
		logger:       logger,
	}
}

func (q *StreamsQueue) Close() error {
	return q.client.Close()
}

// Ping reports whether Redis answers.
func (q *StreamsQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Enqueue appends the message and returns the stream entry id.
func (q *StreamsQueue) Enqueue(ctx context.Context, message domain.QueueMessage) (string, error) {
	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: streamValues(message),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue to stream: %w", err)
	}
	return id, nil
}

// Consume first takes over entries left pending by consumers that stopped
// without acknowledging them, then reads new entries. Each loop repeats the
// takeover so a crashed replica's work is picked up while this one runs.
func (q *StreamsQueue) Consume(ctx context.Context, handler Handler) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := q.reclaim(ctx, handler); err != nil {
			return err
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    1,
			Block:    q.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("xreadgroup: %w", err)
		}

		for _, stream := range streams {
			for _, item := range stream.Messages {
				q.handle(ctx, item, handler)
			}
		}
	}
}

// reclaim walks the pending list with XAUTOCLAIM and handles every entry
// idle for at least claimMinIdle.
func (q *StreamsQueue) reclaim(ctx context.Context, handler Handler) error {
	start := "0-0"
	for {
		items, next, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: q.consumer,
			MinIdle:  q.claimMinIdle,
			Start:    start,
			Count:    16,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("xautoclaim: %w", err)
		}
		for _, item := range items {
			q.logger.Warn().Str("stream_id", item.ID).Msg("stream queue reclaimed idle pending entry")
			q.handle(ctx, item, handler)
		}
		if next == "" || next == "0-0" {
			return nil
		}
		start = next
	}
}

// handle runs the handler and settles the entry. Settling uses a context
// that survives cancellation so a finished delivery is never left pending.
func (q *StreamsQueue) handle(ctx context.Context, item redis.XMessage, handler Handler) {
	settle := context.WithoutCancel(ctx)
	message, parseErr := parseStreamMessage(item)
	if parseErr != nil {
		q.logger.Error().Err(parseErr).Str("stream_id", item.ID).Msg("stream queue dropped malformed message")
		_ = q.sendToDLQ(settle, domain.QueueMessage{}, item, parseErr.Error())
		_ = q.ackAndDelete(settle, item.ID)
		return
	}

	handleErr := handler(ctx, message)
	if handleErr == nil {
		_ = q.ackAndDelete(settle, item.ID)
		return
	}

	message.Attempt++
	if message.Attempt >= q.maxAttempts {
		q.logger.Error().Err(handleErr).Str("job_id", message.JobID).Int("attempt", message.Attempt).Msg("stream queue moved message to DLQ")
		_ = q.sendToDLQ(settle, message, item, handleErr.Error())
		_ = q.ackAndDelete(settle, item.ID)
		return
	}

	if _, requeueErr := q.Enqueue(settle, message); requeueErr != nil {
		_ = q.sendToDLQ(settle, message, item, fmt.Sprintf("requeue failed: %v", requeueErr))
	}
	_ = q.ackAndDelete(settle, item.ID)
}

func (q *StreamsQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("ensure stream group: %w", err)
}

func (q *StreamsQueue) ackAndDelete(ctx context.Context, streamID string) error {
	if err := q.client.XAck(ctx, q.stream, q.group, streamID).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	if err := q.client.XDel(ctx, q.stream, streamID).Err(); err != nil {
		return fmt.Errorf("xdel: %w", err)
	}
	return nil
}

func (q *StreamsQueue) sendToDLQ(ctx context.Context, message domain.QueueMessage, item redis.XMessage, errorMessage string) error {
	values := streamValues(message)
	values["stream_id"] = item.ID
	values["error"] = errorMessage
	values["moved_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.dlqStream, Values: values}).Result(); err != nil {
		return fmt.Errorf("send to dlq: %w", err)
	}
	return nil
}

func streamValues(message domain.QueueMessage) map[string]any {
	return map[string]any{
		"job_id":       message.JobID,
		"kind":         string(message.Kind),
		"attempt":      message.Attempt,
		"requested_at": message.RequestedAt.UTC().Format(time.RFC3339Nano),
	}
}

func parseStreamMessage(item redis.XMessage) (domain.QueueMessage, error) {
	getString := func(key string) (string, error) {
		value, ok := item.Values[key]
		if !ok {
			return "", fmt.Errorf("missing field %s", key)
		}
		switch casted := value.(type) {
		case string:
			return casted, nil
		case []byte:
			return string(casted), nil
		default:
			return fmt.Sprintf("%v", casted), nil
		}
	}

	jobID, err := getString("job_id")
	if err != nil {
		return domain.QueueMessage{}, err
	}
	if jobID == "" {
		return domain.QueueMessage{}, errors.New("empty job_id")
	}
	kind, err := getString("kind")
	if err != nil {
		return domain.QueueMessage{}, err
	}
	attemptString, err := getString("attempt")
	if err != nil {
		return domain.QueueMessage{}, err
	}
	attempt, err := strconv.Atoi(attemptString)
	if err != nil {
		return domain.QueueMessage{}, fmt.Errorf("invalid attempt: %w", err)
	}
	requestedAtString, err := getString("requested_at")
	if err != nil {
		return domain.QueueMessage{}, err
	}
	requestedAt, err := time.Parse(time.RFC3339Nano, requestedAtString)
	if err != nil {
		return domain.QueueMessage{}, fmt.Errorf("invalid requested_at: %w", err)
	}

	return domain.QueueMessage{
		JobID:       jobID,
		Kind:        domain.JobKind(kind),
		Attempt:     attempt,
		RequestedAt: requestedAt,
	}, nil
}

var _ Queue = (*StreamsQueue)(nil)
