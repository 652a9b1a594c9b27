// Package sqldriver implements storage.Driver on database/sql. Queries are
// built with ent's dialect-aware SQL builder so the same code serves SQLite
// and PostgreSQL; the backend packages supply the connection and DDL.
package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/truthstore/pkg/storage"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Driver provides storage operations over a *sql.DB.
// It is database-agnostic and is embedded by the sqlite and postgres drivers.
type Driver struct {
	*store

	DB *sql.DB
}

var _ storage.Driver = (*Driver)(nil)

type store struct {
	q       querier
	dialect string
}

// New wraps db, running each migration statement in order. Statements must
// be idempotent (CREATE ... IF NOT EXISTS).
func New(ctx context.Context, db *sql.DB, dialect string, migrations []string) (*Driver, error) {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return &Driver{
		store: &store{q: db, dialect: dialect},
		DB:    db,
	}, nil
}

// WithTx runs fn inside a database transaction.
func (d *Driver) WithTx(ctx context.Context, fn func(tx storage.Store) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&store{q: tx, dialect: d.dialect}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("failed to roll back: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	return d.DB.Close()
}

func (s *store) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

// exec runs a built statement.
func (s *store) exec(ctx context.Context, b entsql.Querier) (sql.Result, error) {
	query, args := b.Query()
	return s.q.ExecContext(ctx, query, args...)
}

// query runs a built select and hands each row to scan.
func (s *store) query(ctx context.Context, b entsql.Querier, scan func(*sql.Rows) error) error {
	query, args := b.Query()
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Times are stored as unix nanoseconds so both dialects compare and order
// them identically.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
