// Package store persists the costing data model in SQLite and serves it to
// the engine through costing.Repository.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/Simplici0/costeo/internal/costing"
)

const dateLayout = "2006-01-02"

// ErrNotFound reports a write that references a row that does not exist.
var ErrNotFound = errors.New("not found")

const (
	payrollPoolsTable      = "payroll_pools"
	fixedCostLinesTable    = "fixed_cost_lines"
	rawMaterialsTable      = "raw_materials"
	conversionRulesTable   = "conversion_rules"
	productsTable          = "products"
	recipeLinesTable       = "recipe_lines"
	globalConfigTable      = "global_config"
	productionRecordsTable = "production_records"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite-backed repository. The zero value is not usable; use New.
type Store struct {
	db *sql.DB
	q  querier
	sb squirrel.StatementBuilderType
}

var _ costing.Repository = (*Store)(nil)

// New wraps an open database.
func New(db *sql.DB) *Store {
	return &Store{
		db: db,
		q:  db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
}

// WithTx runs fn against a Store bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&Store{db: s.db, q: tx, sb: s.sb}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, b squirrel.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.q.ExecContext(ctx, query, args...)
}

func (s *Store) query(ctx context.Context, b squirrel.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.q.QueryContext(ctx, query, args...)
}

func (s *Store) queryRow(ctx context.Context, b squirrel.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.q.QueryRowContext(ctx, query, args...), nil
}

// lookupID returns the id of the row of table matching where, or 0.
func (s *Store) lookupID(ctx context.Context, table string, where squirrel.Eq) (int64, error) {
	row, err := s.queryRow(ctx, s.sb.Select("id").From(table).Where(where))
	if err != nil {
		return 0, err
	}

	var id int64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return id, nil
}
