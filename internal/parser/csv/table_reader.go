// Package csv reads delimited text into an in-memory table.Table.
//
// The whole input is read before column types are decided, so inference sees
// every value: a column is int64 when every non-empty cell parses as an
// integer, float64 when every cell parses as a number, bool when every cell is
// true/false, and string otherwise. Empty cells are nulls. A column with no
// values at all is float64, matching how the upstream tooling reads the same
// files. Timestamps are left as strings; normalizing them is the
// transformer's job.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"taxietl/internal/table"
)

// Options configures ReadTable. The zero value reads comma-separated input
// with a header row.
type Options struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune

	// TrimSpace trims surrounding whitespace from every cell.
	TrimSpace bool

	// LazyQuotes tolerates bare quotes inside unquoted fields.
	LazyQuotes bool

	// NullValues lists extra cell values treated as null besides "".
	NullValues []string
}

// checkEvery is how many rows are read between context checks.
const checkEvery = 8192

// ReadTable parses r into a table whose columns follow the header order.
// Short rows are padded with nulls; rows wider than the header are an error.
func ReadTable(ctx context.Context, r io.Reader, opt Options) (*table.Table, error) {
	cr := csv.NewReader(r)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = opt.LazyQuotes
	cr.ReuseRecord = true

	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return table.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	header := CleanHeader(hdr)

	nulls := map[string]struct{}{"": {}}
	for _, v := range opt.NullValues {
		nulls[v] = struct{}{}
	}

	raw := make([][]any, len(header))
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: %w", line, err)
		}
		if len(rec) > len(header) {
			return nil, fmt.Errorf("csv: line %d: %d fields, header has %d", line, len(rec), len(header))
		}
		for i := range header {
			var v any
			if i < len(rec) {
				s := rec[i]
				if opt.TrimSpace {
					s = strings.TrimSpace(s)
				}
				if _, isNull := nulls[s]; !isNull {
					// ReuseRecord shares the backing buffer; copy before keeping.
					v = strings.Clone(s)
				}
			}
			raw[i] = append(raw[i], v)
		}
		if line%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}

	out := table.New()
	rows := line - 1
	for i, name := range header {
		vals := raw[i]
		if vals == nil {
			vals = make([]any, rows)
		}
		kind := InferKind(vals)
		if err := convert(vals, kind); err != nil {
			return nil, fmt.Errorf("csv: column %q: %w", name, err)
		}
		if err := out.AddColumn(name, kind, vals); err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
	}
	return out, nil
}

// InferKind picks the narrowest Kind that every non-null string in vals
// parses as.
func InferKind(vals []any) table.Kind {
	isInt, isFloat, isBool := true, true, true
	seen := false
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat && !isInt {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			if _, ok := parseBool(s); !ok {
				isBool = false
			}
		}
		if !isInt && !isFloat && !isBool {
			return table.KindString
		}
	}
	switch {
	case !seen:
		return table.KindFloat64
	case isInt:
		return table.KindInt64
	case isFloat:
		return table.KindFloat64
	case isBool:
		return table.KindBool
	default:
		return table.KindString
	}
}

// convert rewrites string cells in place to the Go type of kind.
func convert(vals []any, kind table.Kind) error {
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch kind {
		case table.KindInt64:
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return err
			}
			vals[i] = n
		case table.KindFloat64:
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return err
			}
			vals[i] = f
		case table.KindBool:
			b, _ := parseBool(s)
			vals[i] = b
		}
	}
	return nil
}

// parseBool accepts only the spelled-out forms; "1"/"0" stay numeric.
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}
