package domain

import "time"

// Asset is a user-owned file in durable storage, either uploaded as a source
// or produced by a job.
type Asset struct {
	ID          string
	OwnerID     string
	JobID       string
	StorageKey  string
	ContentType string
	Bytes       int64
	CreatedAt   time.Time
}
