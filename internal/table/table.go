// Package table is the in-memory tabular dataset passed between pipeline
// stages. It is a column store: each Column holds one Go value per row, and a
// nil value is a null.
//
// Value types by Kind:
//
//	KindString    string
//	KindInt64     int64
//	KindFloat64   float64
//	KindBool      bool
//	KindTimestamp time.Time
//
// A Table is not safe for concurrent mutation; stages run one at a time.
package table

import (
	"fmt"
	"strings"
)

// Kind is the logical type of a column.
type Kind uint8

const (
	KindString Kind = iota
	KindInt64
	KindFloat64
	KindBool
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindBool:
		return "bool"
	case KindTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Field names a column and its Kind.
type Field struct {
	Name string
	Kind Kind
}

// Schema is the ordered list of fields of a table.
type Schema []Field

// Names returns the field names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Name
	}
	return out
}

// Column is a named, typed vector of values.
type Column struct {
	Name   string
	Kind   Kind
	Values []any
}

// NullCount returns the number of nil values.
func (c *Column) NullCount() int {
	n := 0
	for _, v := range c.Values {
		if v == nil {
			n++
		}
	}
	return n
}

// Table is an ordered set of equally long columns.
type Table struct {
	cols   []*Column
	byName map[string]int
	rows   int
}

// New returns an empty table.
func New() *Table {
	return &Table{byName: map[string]int{}}
}

// AddColumn appends a column. The first column fixes the row count; later
// columns must match it. Column names must be unique.
func (t *Table) AddColumn(name string, kind Kind, values []any) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("table: empty column name")
	}
	if _, dup := t.byName[name]; dup {
		return fmt.Errorf("table: duplicate column %q", name)
	}
	if len(t.cols) > 0 && len(values) != t.rows {
		return fmt.Errorf("table: column %q has %d rows, table has %d", name, len(values), t.rows)
	}
	if len(t.cols) == 0 {
		t.rows = len(values)
	}
	t.byName[name] = len(t.cols)
	t.cols = append(t.cols, &Column{Name: name, Kind: kind, Values: values})
	return nil
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// HasColumn reports whether the table has a column called name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Columns returns the columns in order. Callers may mutate column values in
// place but must not change their length.
func (t *Table) Columns() []*Column { return t.cols }

// Names returns column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Schema returns the table's fields in column order.
func (t *Table) Schema() Schema {
	out := make(Schema, len(t.cols))
	for i, c := range t.cols {
		out[i] = Field{Name: c.Name, Kind: c.Kind}
	}
	return out
}

// NumRows returns the row count.
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.cols) }

// Row copies row i into dst (reallocated if too short) and returns it.
func (t *Table) Row(i int, dst []any) []any {
	if cap(dst) < len(t.cols) {
		dst = make([]any, len(t.cols))
	}
	dst = dst[:len(t.cols)]
	for j, c := range t.cols {
		dst[j] = c.Values[i]
	}
	return dst
}
