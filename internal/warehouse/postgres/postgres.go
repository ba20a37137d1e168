// Package postgres loads into PostgreSQL with COPY FROM STDIN via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxietl/internal/blocks"
	"taxietl/internal/ddl"
	"taxietl/internal/etlerr"
	"taxietl/internal/logging"
	"taxietl/internal/table"
	"taxietl/internal/warehouse"
)

func init() {
	warehouse.Register(blocks.CredPostgres, func(ctx context.Context, cred blocks.Credentials, _ string) (warehouse.Loader, error) {
		return Open(ctx, cred.DSN)
	})
}

// Loader is a pgxpool-backed warehouse.Loader.
type Loader struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	created map[string]bool
}

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, dsn string) (*Loader, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classify("postgres.ping", err)
	}
	return &Loader{pool: pool, created: map[string]bool{}}, nil
}

// LoadRows implements warehouse.Loader with a single COPY per call.
func (l *Loader) LoadRows(ctx context.Context, dest warehouse.TableRef, schema table.Schema, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := l.ensureTable(ctx, dest, schema); err != nil {
		return 0, err
	}
	n, err := l.pool.CopyFrom(ctx, identifier(dest), schema.Names(), pgx.CopyFromRows(rows))
	if err != nil {
		return n, classify("postgres.copy", fmt.Errorf("%s: %w", dest, err))
	}
	return n, nil
}

// Close closes the pool.
func (l *Loader) Close() error {
	l.pool.Close()
	return nil
}

func (l *Loader) ensureTable(ctx context.Context, dest warehouse.TableRef, schema table.Schema) error {
	d := ddl.Postgres
	key := d.FQN(dest.Dataset, dest.Table)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.created[key] {
		return nil
	}
	def, err := d.FromSchema(dest.Dataset, dest.Table, schema)
	if err != nil {
		return err
	}
	create, err := d.CreateTableSQL(def)
	if err != nil {
		return err
	}
	stmts := []string{create}
	if s := d.CreateSchemaSQL(dest.Dataset); s != "" {
		stmts = []string{s, create}
	}
	for _, s := range stmts {
		if _, err := l.pool.Exec(ctx, s); err != nil {
			return classify("postgres.ddl", fmt.Errorf("%s: %w", key, err))
		}
	}
	logging.Component("warehouse").Debug("table ready", "backend", "postgres", "table", key)
	l.created[key] = true
	return nil
}

// identifier splits dest into schema and table for pgx.
func identifier(dest warehouse.TableRef) pgx.Identifier {
	if dest.Dataset == "" {
		return pgx.Identifier{dest.Table}
	}
	return pgx.Identifier{dest.Dataset, dest.Table}
}

// classify marks authentication failures (SQLSTATE class 28) and privilege
// errors as AuthError; the rest are left for the caller to classify.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501", len(pgErr.Code) == 5 && pgErr.Code[:2] == "28":
			return etlerr.New(etlerr.KindAuth, op, err)
		}
	}
	return err
}
