package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is the subset of database/sql satisfied by both *sql.DB and *sql.Tx.
// Repository methods that must be able to join a caller's transaction take a
// DBTX instead of reaching for the pool directly.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the database handle and the transaction boundary. Order
// creation and cancellation span multiple conditional writes; WithinTx makes
// the whole sequence all-or-nothing.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithinTx runs fn inside a transaction, rolling back on error or panic.
func (s *Store) WithinTx(ctx context.Context, fn func(q DBTX) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback (%v) after: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// DB exposes the pool for single-statement reads and writes.
func (s *Store) DB() DBTX { return s.db }
