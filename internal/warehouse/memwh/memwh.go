// Package memwh is an in-memory warehouse for tests.
package memwh

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"taxietl/internal/table"
	"taxietl/internal/warehouse"
)

// Warehouse records appended rows per destination table.
type Warehouse struct {
	mu     sync.Mutex
	tables map[warehouse.TableRef]*Table
	calls  int
	closed bool

	// FailOnCall makes the n-th LoadRows call (1-based) return Err.
	FailOnCall int
	// Err is returned by the failing call, or by every call when FailOnCall
	// is zero.
	Err error
}

// Table is the accumulated content of one destination.
type Table struct {
	Schema table.Schema
	Rows   [][]any
	// Chunks records the size of every LoadRows call.
	Chunks []int
}

// New returns an empty Warehouse.
func New() *Warehouse {
	return &Warehouse{tables: map[warehouse.TableRef]*Table{}}
}

// LoadRows implements warehouse.Loader.
func (w *Warehouse) LoadRows(ctx context.Context, dest warehouse.TableRef, schema table.Schema, rows [][]any) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, fmt.Errorf("memwh: closed")
	}
	w.calls++
	if w.Err != nil && (w.FailOnCall == 0 || w.FailOnCall == w.calls) {
		return 0, w.Err
	}

	t, ok := w.tables[dest]
	if !ok {
		t = &Table{Schema: slices.Clone(schema)}
		w.tables[dest] = t
	} else if !sameSchema(t.Schema, schema) {
		return 0, fmt.Errorf("memwh: %s: schema mismatch", dest)
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, slices.Clone(r))
	}
	t.Chunks = append(t.Chunks, len(rows))
	return int64(len(rows)), nil
}

// Close implements warehouse.Loader.
func (w *Warehouse) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

// Reopen clears the closed flag so the same warehouse can serve another run.
func (w *Warehouse) Reopen() {
	w.mu.Lock()
	w.closed = false
	w.mu.Unlock()
}

// Table returns the content loaded into dest.
func (w *Warehouse) Table(dest warehouse.TableRef) (*Table, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tables[dest]
	return t, ok
}

// Calls returns the number of LoadRows calls so far.
func (w *Warehouse) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func sameSchema(a, b table.Schema) bool {
	return slices.Equal(a, b)
}
