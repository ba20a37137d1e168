// Package mysql loads into MySQL/MariaDB with multi-row INSERTs. A dataset
// maps to a database, created if missing.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"taxietl/internal/blocks"
	"taxietl/internal/ddl"
	"taxietl/internal/warehouse"
	"taxietl/internal/warehouse/sqlwh"
)

func init() {
	warehouse.Register(blocks.CredMySQL, func(ctx context.Context, cred blocks.Credentials, _ string) (warehouse.Loader, error) {
		return Open(ctx, cred.DSN)
	})
}

// The protocol caps prepared statements at 65535 placeholders.
const maxParams = 65535

// Open connects to dsn (go-sql-driver format, e.g.
// "user:pass@tcp(host:3306)/"). parseTime and UTC are forced so timestamps
// round-trip unchanged.
func Open(ctx context.Context, dsn string) (*sqlwh.Loader, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	connector, err := driver.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping %s: %w", cfg.Addr, err)
	}
	return sqlwh.New(sqlwh.Config{DB: db, Dialect: ddl.MySQL, MaxParams: maxParams}), nil
}
