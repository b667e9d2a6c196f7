package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Backend is durable object storage for generated and uploaded assets.
type Backend interface {
	// Put stores data under key and returns the canonical key.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	// PublicURL returns a URL clients and providers can fetch key from.
	PublicURL(ctx context.Context, key string) (string, error)
}

// ErrNoStore is returned by nil backends.
var ErrNoStore = errors.New("storage: no store configured")

// PersistError wraps any failure to copy a generated output into durable
// storage. It is always safe to retry.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("storage: persist %s: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
