package domain

import "time"

// CreditEntryType enumerates ledger movements.
type CreditEntryType string

const (
	CreditEntryDebit  CreditEntryType = "debit"
	CreditEntryRefund CreditEntryType = "refund"
	CreditEntryGrant  CreditEntryType = "grant"
)

// CreditEntry is one audited balance movement.
type CreditEntry struct {
	ID           string
	OwnerID      string
	JobID        string
	EntryType    CreditEntryType
	Amount       int64
	BalanceAfter int64
	CreatedAt    time.Time
}
