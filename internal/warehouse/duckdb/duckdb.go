// Package duckdb loads into a DuckDB database file through the native
// appender, which is far faster than INSERT for columnar engines.
package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"

	"github.com/marcboeker/go-duckdb"

	"taxietl/internal/blocks"
	"taxietl/internal/ddl"
	"taxietl/internal/table"
	"taxietl/internal/warehouse"
	"taxietl/internal/warehouse/sqlwh"
)

func init() {
	warehouse.Register(blocks.CredDuckDB, func(ctx context.Context, cred blocks.Credentials, _ string) (warehouse.Loader, error) {
		return Open(ctx, cred.DSN)
	})
}

// Loader appends through a dedicated connection. DDL goes through the
// shared sqlwh path on the same database.
type Loader struct {
	*sqlwh.Loader

	mu   sync.Mutex
	conn driver.Conn
}

// Open opens the database at dsn; "" is an in-memory database.
func Open(ctx context.Context, dsn string) (*Loader, error) {
	connector, err := duckdb.NewConnector(dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open %q: %w", dsn, err)
	}
	conn, err := connector.Connect(ctx)
	if err != nil {
		_ = connector.Close()
		return nil, fmt.Errorf("duckdb: connect: %w", err)
	}
	db := sql.OpenDB(connector)
	return &Loader{
		Loader: sqlwh.New(sqlwh.Config{DB: db, Dialect: ddl.DuckDB}),
		conn:   conn,
	}, nil
}

// LoadRows implements warehouse.Loader. The appender is not transactional:
// on a failed row it is still closed, which flushes the rows appended
// before it, so a failed chunk may be partially appended.
func (l *Loader) LoadRows(ctx context.Context, dest warehouse.TableRef, schema table.Schema, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := l.EnsureTable(ctx, dest, schema); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	app, err := duckdb.NewAppenderFromConn(l.conn, dest.Dataset, dest.Table)
	if err != nil {
		return 0, fmt.Errorf("duckdb: appender for %s: %w", dest, err)
	}
	vals := make([]driver.Value, len(schema))
	for i, r := range rows {
		if i%8192 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, errors.Join(err, app.Close())
			}
		}
		for j, v := range r {
			vals[j] = v
		}
		if err := app.AppendRow(vals...); err != nil {
			return 0, errors.Join(fmt.Errorf("duckdb: append row %d: %w", i, err), app.Close())
		}
	}
	if err := app.Close(); err != nil {
		return 0, fmt.Errorf("duckdb: flush %s: %w", dest, err)
	}
	return int64(len(rows)), nil
}

// Close releases the appender connection and the database.
func (l *Loader) Close() error {
	return errors.Join(l.conn.Close(), l.Loader.Close())
}
