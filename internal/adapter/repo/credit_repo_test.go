package repo

import (
	"context"
	"testing"
	"time"

	"genstudio/internal/domain"
	"genstudio/internal/sqlinline"
)

func TestBalanceMissingAccountIsZero(t *testing.T) {
	ledger := NewCreditLedger(newStubDB())
	balance, err := ledger.Balance(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Balance error: %v", err)
	}
	if balance != 0 {
		t.Fatalf("balance = %d, want 0", balance)
	}
}

func TestGrantRecordsEntry(t *testing.T) {
	db := newStubDB()
	db.script(sqlinline.QGrantCredits, int64(50))
	ledger := NewCreditLedger(db)

	balance, err := ledger.Grant(context.Background(), "owner-1", 50)
	if err != nil {
		t.Fatalf("Grant error: %v", err)
	}
	if balance != 50 {
		t.Fatalf("balance = %d, want 50", balance)
	}
	entries := db.execsOf(sqlinline.QInsertCreditEntry)
	if len(entries) != 1 || entries[0].args[2] != string(domain.CreditEntryGrant) {
		t.Fatalf("unexpected entries %#v", entries)
	}
	if db.commits != 1 {
		t.Fatalf("commits = %d, want 1", db.commits)
	}
}

func TestGrantRejectsNonPositive(t *testing.T) {
	ledger := NewCreditLedger(newStubDB())
	if _, err := ledger.Grant(context.Background(), "owner-1", 0); err == nil {
		t.Fatal("expected error for zero grant")
	}
}

func TestEntries(t *testing.T) {
	db := newStubDB()
	now := time.Now()
	db.lists[sqlinline.QListCreditEntries] = [][]any{
		{"e2", "owner-1", "job-1", "refund", int64(5), int64(20), now},
		{"e1", "owner-1", "job-1", "debit", int64(-5), int64(15), now},
	}
	ledger := NewCreditLedger(db)

	entries, err := ledger.Entries(context.Background(), "owner-1", 10)
	if err != nil {
		t.Fatalf("Entries error: %v", err)
	}
	if len(entries) != 2 || entries[0].EntryType != domain.CreditEntryRefund || entries[1].Amount != -5 {
		t.Fatalf("unexpected entries %#v", entries)
	}
}
