package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"genstudio/internal/adapter/repo"
	"genstudio/internal/config"
	"genstudio/internal/domain"
	"genstudio/internal/infra"
)

func main() {
	var (
		ownerFlag string
		grantFlag int64
		showFlag  int
	)
	flag.StringVar(&ownerFlag, "owner", "", "owner ID whose balance to manage")
	flag.Int64Var(&grantFlag, "grant", 0, "credits to add to the owner's balance (must be positive)")
	flag.IntVar(&showFlag, "show", 10, "number of recent ledger entries to print (0 to skip)")
	flag.Parse()

	owner := strings.TrimSpace(ownerFlag)
	if owner == "" {
		exitWithError(errors.New("-owner is required"))
	}
	if grantFlag < 0 {
		exitWithError(fmt.Errorf("-grant must be positive, got %d", grantFlag))
	}

	cfg, err := config.Load()
	if err != nil {
		exitWithError(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", cfg.LogLevel, "").With().Str("cmd", "credits").Str("owner", owner).Logger()
	ledger := repo.NewCreditLedger(infra.NewSQLRunner(pool, logger))

	var balance int64
	if grantFlag > 0 {
		balance, err = ledger.Grant(ctx, owner, grantFlag)
		if err != nil {
			exitWithError(fmt.Errorf("failed to grant credits: %w", err))
		}
		fmt.Printf("Granted %d credits to %s\n", grantFlag, owner)
	} else {
		balance, err = ledger.Balance(ctx, owner)
		if err != nil {
			exitWithError(fmt.Errorf("failed to load balance: %w", err))
		}
	}
	fmt.Printf("balance=%d\n", balance)

	if showFlag <= 0 {
		return
	}
	entries, err := ledger.Entries(ctx, owner, showFlag)
	if err != nil {
		exitWithError(fmt.Errorf("failed to list ledger entries: %w", err))
	}
	for _, e := range entries {
		job := e.JobID
		if job == "" {
			job = "-"
		}
		fmt.Printf("%s  %-6s  %+6d  balance=%d  job=%s\n",
			e.CreatedAt.UTC().Format(time.RFC3339), e.EntryType, signed(e), e.BalanceAfter, job)
	}
}

func signed(e domain.CreditEntry) int64 {
	if e.EntryType == domain.CreditEntryDebit {
		return -e.Amount
	}
	return e.Amount
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
