// Package warehouse appends tables to an analytical warehouse.
//
// A Loader is opened from a credentials block; the block's kind picks the
// backend (BigQuery, or one of the SQL databases). Backends register
// themselves from init, so a binary only needs to import the ones it wants
// (see warehouse/all).
//
// Loads are append-only. The destination table is created on first use and
// never truncated, so loading the same partition twice duplicates its rows.
package warehouse

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"taxietl/internal/blocks"
	"taxietl/internal/etlerr"
	"taxietl/internal/table"
)

// DefaultBatchSize is the number of rows sent per LoadRows call.
const DefaultBatchSize = 100_000

// TableRef names a destination table.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

// String returns "project.dataset.table", omitting an empty project.
func (r TableRef) String() string {
	if r.Project == "" {
		return r.Dataset + "." + r.Table
	}
	return r.Project + "." + r.Dataset + "." + r.Table
}

// Loader appends rows to warehouse tables.
type Loader interface {
	// LoadRows appends rows (ordered like schema) to dest, creating the
	// table if needed, and returns the number of rows written.
	LoadRows(ctx context.Context, dest TableRef, schema table.Schema, rows [][]any) (int64, error)
	Close() error
}

// Factory opens a Loader for a credentials block. project is the default
// project for backends that have one.
type Factory func(ctx context.Context, cred blocks.Credentials, project string) (Loader, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under a credentials kind. It panics on
// a duplicate kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[kind]; dup {
		panic("warehouse: duplicate backend " + kind)
	}
	factories[kind] = f
}

// Kinds lists the registered backend kinds.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open returns a Loader for cred. Failures are AuthError: the credentials
// could not be turned into a working client.
func Open(ctx context.Context, cred blocks.Credentials, project string) (Loader, error) {
	mu.RLock()
	f, ok := factories[cred.Kind]
	mu.RUnlock()
	if !ok {
		return nil, etlerr.Newf(etlerr.KindAuth, "warehouse.open", "block %q: no backend for kind %q (have %v)", cred.Name, cred.Kind, Kinds())
	}
	l, err := f(ctx, cred, project)
	if err != nil {
		return nil, etlerr.New(etlerr.KindAuth, "warehouse.open", fmt.Errorf("block %q: %w", cred.Name, err))
	}
	return l, nil
}
