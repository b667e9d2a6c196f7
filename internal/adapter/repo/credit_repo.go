package repo

import (
	"context"
	"fmt"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/sqlinline"
)

// CreditLedgerPG implements domain.CreditLedger. Debit and Refund take the
// executor explicitly so they run on the caller's transaction.
type CreditLedgerPG struct {
	db infra.TxRunner
}

// NewCreditLedger creates a ledger backed by PostgreSQL.
func NewCreditLedger(db infra.TxRunner) *CreditLedgerPG {
	return &CreditLedgerPG{db: db}
}

// Debit decrements the owner's balance when it covers amount.
func (l *CreditLedgerPG) Debit(ctx context.Context, exec infra.SQLExecutor, ownerID string, amount int64, jobID string) (int64, error) {
	var balance int64
	if err := exec.QueryRow(ctx, sqlinline.QDebitCredits, ownerID, amount).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrInsufficientBalance
		}
		return 0, fmt.Errorf("debit credits: %w", err)
	}
	if err := l.record(ctx, exec, ownerID, jobID, domain.CreditEntryDebit, -amount, balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// Refund increments the owner's balance. Callers gate it on the job's
// refunded flag; the ledger itself does not deduplicate.
func (l *CreditLedgerPG) Refund(ctx context.Context, exec infra.SQLExecutor, ownerID string, amount int64, jobID string) (int64, error) {
	var balance int64
	if err := exec.QueryRow(ctx, sqlinline.QRefundCredits, ownerID, amount).Scan(&balance); err != nil {
		return 0, fmt.Errorf("refund credits: %w", err)
	}
	if err := l.record(ctx, exec, ownerID, jobID, domain.CreditEntryRefund, amount, balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// Balance returns the current balance; an owner without an account has 0.
func (l *CreditLedgerPG) Balance(ctx context.Context, ownerID string) (int64, error) {
	var balance int64
	if err := l.db.QueryRow(ctx, sqlinline.QSelectCreditBalance, ownerID).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

// Grant tops up an owner's balance, creating the account on demand.
func (l *CreditLedgerPG) Grant(ctx context.Context, ownerID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("grant amount must be positive")
	}
	var balance int64
	err := l.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		if err := tx.QueryRow(ctx, sqlinline.QGrantCredits, ownerID, amount).Scan(&balance); err != nil {
			return fmt.Errorf("grant credits: %w", err)
		}
		return l.record(ctx, tx, ownerID, "", domain.CreditEntryGrant, amount, balance)
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Entries lists the most recent ledger movements for an owner.
func (l *CreditLedgerPG) Entries(ctx context.Context, ownerID string, limit int) ([]domain.CreditEntry, error) {
	rows, err := l.db.Query(ctx, sqlinline.QListCreditEntries, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.CreditEntry
	for rows.Next() {
		var (
			entry     domain.CreditEntry
			entryType string
		)
		if err := rows.Scan(&entry.ID, &entry.OwnerID, &entry.JobID, &entryType, &entry.Amount, &entry.BalanceAfter, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.EntryType = domain.CreditEntryType(entryType)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *CreditLedgerPG) record(ctx context.Context, exec infra.SQLExecutor, ownerID, jobID string, entryType domain.CreditEntryType, amount, balance int64) error {
	if _, err := exec.Exec(ctx, sqlinline.QInsertCreditEntry, ownerID, jobID, string(entryType), amount, balance); err != nil {
		return fmt.Errorf("record credit entry: %w", err)
	}
	return nil
}

var _ domain.CreditLedger = (*CreditLedgerPG)(nil)
