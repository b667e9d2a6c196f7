package infra

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

func TestExtractMarker(t *testing.T) {
	query := "--sql 0b8c3f0e-5d3a-4c55-9f0e-2f8b2f4d6a11\nSELECT 1"
	marker, body, err := extractMarker(query)
	if err != nil {
		t.Fatalf("extractMarker returned error: %v", err)
	}
	if marker != "0b8c3f0e-5d3a-4c55-9f0e-2f8b2f4d6a11" {
		t.Fatalf("marker = %q", marker)
	}
	if body != "SELECT 1" {
		t.Fatalf("body = %q, want %q", body, "SELECT 1")
	}
}

func TestExtractMarkerRejectsUnmarkedQuery(t *testing.T) {
	for _, query := range []string{"SELECT 1", "--sql not-a-uuid\nSELECT 1", ""} {
		if _, _, err := extractMarker(query); err == nil {
			t.Fatalf("extractMarker(%q) expected error", query)
		}
	}
}

type fakeTx struct {
	pgx.Tx
	commits   int
	rollbacks int
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.commits++
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rollbacks++
	if f.commits > 0 {
		return pgx.ErrTxClosed
	}
	return nil
}

type fakeBeginner struct {
	tx *fakeTx
}

func (f *fakeBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return f.tx, nil
}

func TestRunInTx(t *testing.T) {
	errBoom := errors.New("boom")
	tests := []struct {
		name          string
		fn            func(SQLExecutor) error
		wantErr       error
		wantCommits   int
		wantRollbacks int
	}{
		{name: "commit", fn: func(SQLExecutor) error { return nil }, wantCommits: 1},
		{name: "error rolls back", fn: func(SQLExecutor) error { return errBoom }, wantErr: errBoom, wantRollbacks: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeBeginner{tx: &fakeTx{}}
			err := runInTx(context.Background(), db, zerolog.Nop(), tt.fn)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if db.tx.commits != tt.wantCommits || db.tx.rollbacks != tt.wantRollbacks {
				t.Fatalf("commits = %d rollbacks = %d, want %d %d", db.tx.commits, db.tx.rollbacks, tt.wantCommits, tt.wantRollbacks)
			}
		})
	}
}

func TestRunInTxRollsBackOnPanic(t *testing.T) {
	db := &fakeBeginner{tx: &fakeTx{}}
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("panic was swallowed")
			}
		}()
		_ = runInTx(context.Background(), db, zerolog.Nop(), func(SQLExecutor) error {
			panic("fn exploded")
		})
	}()
	if db.tx.rollbacks != 1 || db.tx.commits != 0 {
		t.Fatalf("commits = %d rollbacks = %d, want 0 1", db.tx.commits, db.tx.rollbacks)
	}
}
