package domain

import "context"

// JobRepository persists jobs together with the credit movements that must be
// atomic with their state transitions.
type JobRepository interface {
	// CreateWithDebit debits job.DebitedAmount from the owner and inserts the
	// job as queued in one transaction. ErrInsufficientBalance leaves no row.
	CreateWithDebit(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Job, error)
	// MarkProcessing moves queued to processing. It reports false when the job
	// was no longer queued.
	MarkProcessing(ctx context.Context, jobID string) (bool, error)
	// MarkDone moves processing to done. ErrInvalidTransition when the job is
	// not processing.
	MarkDone(ctx context.Context, jobID string, result Result) error
	// Fail moves a non-terminal job to error and refunds DebitedAmount in the
	// same transaction, unless already refunded. It reports whether this call
	// performed the refund.
	Fail(ctx context.Context, jobID string, failure Failure) (bool, error)
}

// CreditLedger exposes balance reads and admin grants. Debits and refunds go
// through JobRepository so they share the job's transaction.
type CreditLedger interface {
	Balance(ctx context.Context, ownerID string) (int64, error)
	Grant(ctx context.Context, ownerID string, amount int64) (int64, error)
}

// TemplateRepository resolves catalog templates.
type TemplateRepository interface {
	GetByID(ctx context.Context, id string) (*Template, error)
}

// AssetRepository resolves uploaded assets owned by a user.
type AssetRepository interface {
	GetForOwner(ctx context.Context, ownerID, assetID string) (*Asset, error)
}
