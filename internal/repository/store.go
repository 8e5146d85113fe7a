package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so every repository
// method can run standalone or inside a caller-owned transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the connection pool and hands out transactions.
type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Conn returns the pool for reads that need no transaction.
func (s *Store) Conn() DBTX { return s.db }

// DB exposes the underlying pool (health checks).
func (s *Store) DB() *sql.DB { return s.db }

// WithTx runs fn inside a REPEATABLE READ transaction. The transaction is
// committed only when fn returns nil; any error or panic rolls it back.
func (s *Store) WithTx(ctx context.Context, fn func(q DBTX) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// pageBounds converts a 1-indexed page into LIMIT/OFFSET values.
func pageBounds(page, size int) (limit, offset int) {
	if size <= 0 {
		size = 20
	}
	if page < 1 {
		page = 1
	}
	return size, (page - 1) * size
}
