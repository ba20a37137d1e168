// Package builtin contains the column rules used by the pipelines.
//
// Every rule skips columns the table does not have; taxi categories differ
// in their columns and that is not an error.
package builtin

import (
	"fmt"
	"strings"
	"time"

	"taxietl/internal/etlerr"
	"taxietl/internal/table"
)

// DefaultLayouts are tried in order. Values without a zone are read as UTC.
var DefaultLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"01/02/2006 03:04:05 PM",
	"2006-01-02",
}

// ParseTimestamps converts string columns to timestamp columns. Columns that
// are already timestamps are left alone, so applying it twice is harmless.
type ParseTimestamps struct {
	Columns []string
	// Layouts overrides DefaultLayouts.
	Layouts []string
}

func (p ParseTimestamps) Apply(t *table.Table) error {
	layouts := p.Layouts
	if len(layouts) == 0 {
		layouts = DefaultLayouts
	}
	for _, name := range p.Columns {
		c, ok := t.Column(name)
		if !ok {
			continue
		}
		switch c.Kind {
		case table.KindTimestamp:
			continue
		case table.KindString, table.KindFloat64:
			// An all-null column is inferred as float64.
			if c.Kind == table.KindFloat64 && c.NullCount() != len(c.Values) {
				return etlerr.Newf(etlerr.KindTransform, "parse timestamps", "column %q is %s, not text", name, c.Kind)
			}
		default:
			return etlerr.Newf(etlerr.KindTransform, "parse timestamps", "column %q is %s, not text", name, c.Kind)
		}

		out := make([]any, len(c.Values))
		last := 0
		for i, v := range c.Values {
			s, ok := v.(string)
			if !ok {
				continue
			}
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			ts, idx, err := parse(s, layouts, last)
			if err != nil {
				return etlerr.New(etlerr.KindTransform, "parse timestamps",
					fmt.Errorf("column %q row %d: %w", name, i, err))
			}
			last = idx
			out[i] = ts
		}
		c.Values = out
		c.Kind = table.KindTimestamp
	}
	return nil
}

// parse tries the layout that worked last time first; files use one layout
// throughout.
func parse(s string, layouts []string, hint int) (time.Time, int, error) {
	if ts, err := time.ParseInLocation(layouts[hint], s, time.UTC); err == nil {
		return ts.UTC(), hint, nil
	}
	for i, l := range layouts {
		if i == hint {
			continue
		}
		if ts, err := time.ParseInLocation(l, s, time.UTC); err == nil {
			return ts.UTC(), i, nil
		}
	}
	return time.Time{}, hint, fmt.Errorf("unrecognized timestamp %q", s)
}
