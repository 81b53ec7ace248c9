package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so every store can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Stores bundles the stores bound to one connection or transaction.
type Stores struct {
	Users      *UserStore
	Households *HouseholdStore
	Lists      *ListStore
	Rewards    *RewardStore
	Usage      *UsageStore
}

func New(db DBTX) *Stores {
	return &Stores{
		Users:      NewUserStore(db),
		Households: NewHouseholdStore(db),
		Lists:      NewListStore(db),
		Rewards:    NewRewardStore(db),
		Usage:      NewUsageStore(db),
	}
}

// InTx runs fn with stores bound to a single transaction. The transaction
// commits if fn returns nil and rolls back otherwise.
//
// Callers must not touch db from inside fn: the pool holds one connection.
func InTx(ctx context.Context, db *sql.DB, fn func(*Stores) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(New(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Run is InTx bounded by timeout. The transaction ignores cancellation of
// ctx, so a caller that goes away cannot abort a commit halfway.
func Run(ctx context.Context, db *sql.DB, timeout time.Duration, fn func(*Stores) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return InTx(ctx, db, fn)
}

type scanner interface{ Scan(...any) error }
