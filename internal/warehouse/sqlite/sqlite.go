// Package sqlite is a file-backed warehouse for local runs, using the pure Go
// modernc.org/sqlite driver. Datasets map to a table name prefix:
// trips_data_all.green_2020_1 becomes "trips_data_all__green_2020_1".
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"taxietl/internal/blocks"
	"taxietl/internal/ddl"
	"taxietl/internal/warehouse"
	"taxietl/internal/warehouse/sqlwh"

	_ "modernc.org/sqlite"
)

func init() {
	warehouse.Register(blocks.CredSQLite, func(ctx context.Context, cred blocks.Credentials, _ string) (warehouse.Loader, error) {
		return Open(ctx, cred.DSN)
	})
}

// SQLite's default SQLITE_MAX_VARIABLE_NUMBER.
const maxParams = 32766

// Open opens (creating if needed) the database at dsn.
func Open(ctx context.Context, dsn string) (*sqlwh.Loader, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return sqlwh.New(sqlwh.Config{
		DB:        db,
		Dialect:   ddl.SQLite,
		MaxParams: maxParams,
		Convert:   convert,
	}), nil
}

// Timestamps are stored as RFC 3339 text in UTC so they sort and compare.
func convert(v any) any {
	if ts, ok := v.(time.Time); ok {
		return ts.UTC().Format(time.RFC3339Nano)
	}
	return v
}
