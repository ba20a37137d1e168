// Package sqlwh is the shared database/sql implementation behind the SQL
// warehouse backends. A destination's dataset becomes a schema (or a table
// name prefix where the database has no schemas); the table is created from
// the row schema the first time it is seen.
package sqlwh

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"taxietl/internal/ddl"
	"taxietl/internal/logging"
	"taxietl/internal/table"
	"taxietl/internal/warehouse"
)

// BulkFunc writes rows into an existing table inside tx and returns the row
// count. Backends with a native bulk path supply one.
type BulkFunc func(ctx context.Context, tx *sql.Tx, schema, name string, columns []string, rows [][]any) (int64, error)

// Config configures a Loader.
type Config struct {
	DB      *sql.DB
	Dialect ddl.Dialect

	// MaxParams caps bind parameters per INSERT statement. Zero means 999.
	MaxParams int

	// Bulk replaces the multi-row INSERT path when set.
	Bulk BulkFunc

	// Convert adjusts a value before it is bound, e.g. for drivers that
	// want timestamps in a particular form.
	Convert func(v any) any
}

// Loader is a warehouse.Loader over database/sql.
type Loader struct {
	cfg Config

	mu      sync.Mutex
	created map[string]bool
}

// New wraps cfg.DB. The Loader owns the DB and closes it on Close.
func New(cfg Config) *Loader {
	if cfg.MaxParams <= 0 {
		cfg.MaxParams = 999
	}
	return &Loader{cfg: cfg, created: map[string]bool{}}
}

// DB returns the underlying handle.
func (l *Loader) DB() *sql.DB { return l.cfg.DB }

// LoadRows implements warehouse.Loader. Each call is one transaction.
func (l *Loader) LoadRows(ctx context.Context, dest warehouse.TableRef, schema table.Schema, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := l.EnsureTable(ctx, dest, schema); err != nil {
		return 0, err
	}

	tx, err := l.cfg.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin: %w", l.cfg.Dialect.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if l.cfg.Convert != nil {
		rows = convertRows(rows, l.cfg.Convert)
	}
	cols := schema.Names()
	var n int64
	if l.cfg.Bulk != nil {
		n, err = l.cfg.Bulk(ctx, tx, dest.Dataset, dest.Table, cols, rows)
	} else {
		n, err = l.insert(ctx, tx, l.cfg.Dialect.FQN(dest.Dataset, dest.Table), cols, rows)
	}
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", l.cfg.Dialect.Name, err)
	}
	return n, nil
}

// Close closes the database handle.
func (l *Loader) Close() error {
	return l.cfg.DB.Close()
}

// EnsureTable creates dest's schema and table once per Loader.
func (l *Loader) EnsureTable(ctx context.Context, dest warehouse.TableRef, schema table.Schema) error {
	d := l.cfg.Dialect
	key := d.FQN(dest.Dataset, dest.Table)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.created[key] {
		return nil
	}
	if stmt := d.CreateSchemaSQL(dest.Dataset); stmt != "" {
		if _, err := l.cfg.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: create schema %s: %w", d.Name, dest.Dataset, err)
		}
	}
	def, err := d.FromSchema(dest.Dataset, dest.Table, schema)
	if err != nil {
		return err
	}
	stmt, err := d.CreateTableSQL(def)
	if err != nil {
		return err
	}
	if _, err := l.cfg.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%s: create table %s: %w", d.Name, key, err)
	}
	logging.Component("warehouse").Debug("table ready", "backend", d.Name, "table", key)
	l.created[key] = true
	return nil
}

// insert writes rows with as few multi-row INSERTs as MaxParams allows.
func (l *Loader) insert(ctx context.Context, tx *sql.Tx, fqn string, cols []string, rows [][]any) (int64, error) {
	per := max(l.cfg.MaxParams/len(cols), 1)

	var (
		total    int64
		stmt     *sql.Stmt
		stmtRows int
	)
	defer func() {
		if stmt != nil {
			_ = stmt.Close()
		}
	}()
	args := make([]any, 0, per*len(cols))
	for lo := 0; lo < len(rows); lo += per {
		hi := min(lo+per, len(rows))
		if stmt == nil || hi-lo != stmtRows {
			if stmt != nil {
				_ = stmt.Close()
			}
			var err error
			stmt, err = tx.PrepareContext(ctx, l.cfg.Dialect.InsertSQL(fqn, cols, hi-lo))
			if err != nil {
				return total, fmt.Errorf("%s: prepare insert: %w", l.cfg.Dialect.Name, err)
			}
			stmtRows = hi - lo
		}
		args = args[:0]
		for _, r := range rows[lo:hi] {
			args = append(args, r...)
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return total, fmt.Errorf("%s: insert into %s: %w", l.cfg.Dialect.Name, fqn, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		} else {
			total += int64(hi - lo)
		}
	}
	return total, nil
}

func convertRows(rows [][]any, conv func(any) any) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		c := make([]any, len(r))
		for j, v := range r {
			c[j] = conv(v)
		}
		out[i] = c
	}
	return out
}
