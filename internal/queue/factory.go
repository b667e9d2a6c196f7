package queue

import (
	"context"
	"fmt"

	"genstudio/internal/infra"
)

// New builds the backend selected by cfg.QueueDriver.
func New(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (Queue, error) {
	switch cfg.QueueDriver {
	case "", "local":
		return NewLocalQueue(cfg.QueueBufferSize, cfg.QueueMaxDeliveries, logger), nil
	case "redis":
		return NewStreamsQueue(ctx, StreamsConfig{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			Stream:       cfg.RedisStream,
			DLQStream:    cfg.RedisDLQStream,
			Group:        cfg.RedisGroup,
			Consumer:     cfg.RedisConsumer,
			MaxAttempts:  cfg.QueueMaxDeliveries,
			ClaimMinIdle: cfg.RedisClaimMinIdle,
			Logger:       logger,
		})
	case "nats":
		return NewNATSQueue(ctx, NATSConfig{
			URL:         cfg.NATSURL,
			Subject:     cfg.NATSSubject,
			QueueGroup:  cfg.NATSQueue,
			MaxAttempts: cfg.QueueMaxDeliveries,
			AckWait:     cfg.NATSAckWait,
			Logger:      logger,
		})
	default:
		return nil, fmt.Errorf("unsupported queue driver %q", cfg.QueueDriver)
	}
}
