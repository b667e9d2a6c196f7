package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	db     infra.TxRunner
	ledger *CreditLedgerPG
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(db infra.TxRunner, ledger *CreditLedgerPG) *JobRepositoryPG {
	if ledger == nil {
		ledger = NewCreditLedger(db)
	}
	return &JobRepositoryPG{db: db, ledger: ledger}
}

// CreateWithDebit inserts the job and debits its cost in one transaction.
func (r *JobRepositoryPG) CreateWithDebit(ctx context.Context, job *domain.Job) error {
	if job == nil || strings.TrimSpace(job.ID) == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrInvalidJob)
	}
	refs, err := json.Marshal(nonNilRefs(job.InputAssetRefs))
	if err != nil {
		return err
	}
	params, err := json.Marshal(job.Params)
	if err != nil {
		return err
	}

	return r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		row := tx.QueryRow(ctx, sqlinline.QInsertJob,
			job.ID,
			job.OwnerID,
			string(job.Kind),
			job.Prompt,
			refs,
			job.TemplateID,
			params,
			job.Locale,
			job.DebitedAmount,
		)
		if err := row.Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		if _, err := r.ledger.Debit(ctx, tx, job.OwnerID, job.DebitedAmount, job.ID); err != nil {
			return err
		}
		job.Status = domain.JobStatusQueued
		job.Refunded = false
		return nil
	})
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(r.db.QueryRow(ctx, sqlinline.QSelectJob, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListByOwner returns the owner's most recent jobs first.
func (r *JobRepositoryPG) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Job, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListJobsByOwner, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// MarkProcessing claims a queued job.
func (r *JobRepositoryPG) MarkProcessing(ctx context.Context, jobID string) (bool, error) {
	tag, err := r.db.Exec(ctx, sqlinline.QMarkJobProcessing, jobID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkDone records the durable result and registers it as an asset of the owner.
func (r *JobRepositoryPG) MarkDone(ctx context.Context, jobID string, result domain.Result) error {
	return r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		var ownerID string
		row := tx.QueryRow(ctx, sqlinline.QMarkJobDone, jobID, result.AssetRef, result.URL, result.PredictionID, result.Attempts)
		if err := row.Scan(&ownerID); err != nil {
			if infra.IsNoRows(err) {
				return domain.ErrInvalidTransition
			}
			return fmt.Errorf("mark job done: %w", err)
		}
		contentType := result.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		var assetID string
		if err := tx.QueryRow(ctx, sqlinline.QInsertAsset, ownerID, jobID, result.AssetRef, contentType, result.Bytes).Scan(&assetID); err != nil {
			return fmt.Errorf("insert result asset: %w", err)
		}
		return nil
	})
}

// Fail moves the job to error and refunds it in the same transaction.
func (r *JobRepositoryPG) Fail(ctx context.Context, jobID string, failure domain.Failure) (bool, error) {
	refunded := false
	err := r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		var (
			ownerID string
			amount  int64
		)
		row := tx.QueryRow(ctx, sqlinline.QFailJob, jobID, failure.Message, failure.Recoverable, failure.PredictionID, failure.Attempts)
		if err := row.Scan(&ownerID, &amount); err != nil {
			if !infra.IsNoRows(err) {
				return fmt.Errorf("fail job: %w", err)
			}
			if _, err := scanJob(tx.QueryRow(ctx, sqlinline.QSelectJob, jobID)); err != nil {
				if infra.IsNoRows(err) {
					return domain.ErrNotFound
				}
				return err
			}
			return nil
		}
		if _, err := r.ledger.Refund(ctx, tx, ownerID, amount, jobID); err != nil {
			return err
		}
		refunded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return refunded, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job            domain.Job
		kind, status   string
		refs, paramsJS []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&kind,
		&job.Prompt,
		&refs,
		&job.TemplateID,
		&paramsJS,
		&job.Locale,
		&status,
		&job.DebitedAmount,
		&job.Refunded,
		&job.Recoverable,
		&job.ResultAssetRef,
		&job.ResultURL,
		&job.ErrorMessage,
		&job.PredictionID,
		&job.Attempts,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &job.InputAssetRefs); err != nil {
			return nil, fmt.Errorf("decode input refs: %w", err)
		}
	}
	if len(paramsJS) > 0 {
		if err := json.Unmarshal(paramsJS, &job.Params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
	}
	return &job, nil
}

func nonNilRefs(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	return refs
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
