package queue

import (
	"context"
	"errors"

	"genstudio/internal/domain"
)

var (
	// ErrQueueFull is returned when a bounded queue cannot accept a message.
	ErrQueueFull = errors.New("queue: buffer full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("queue: closed")
)

// Handler processes one delivery. A non-nil error asks for redelivery.
type Handler func(ctx context.Context, message domain.QueueMessage) error

// Producer sends async jobs to a queue backend and returns a backend handle.
type Producer interface {
	Enqueue(ctx context.Context, message domain.QueueMessage) (string, error)
}

// Consumer receives async jobs and executes handlers. Consume blocks until
// ctx is done or the backend fails.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}

// Queue is a backend that both produces and consumes.
type Queue interface {
	Producer
	Consumer
	Close() error
}

// Pinger is implemented by backends that hold a network connection.
type Pinger interface {
	Ping(ctx context.Context) error
}
