// Package parquetfile writes tables to compressed parquet files and reads
// them back.
//
// Every column is written as an optional leaf so nulls survive the round
// trip. parquet-go orders group fields by name; the original column order is
// stored in the file's key/value metadata and restored on read.
package parquetfile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"taxietl/internal/etlerr"
	"taxietl/internal/fsutil"
	"taxietl/internal/table"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"github.com/zeebo/xxh3"
)

const (
	schemaName   = "trips"
	columnsKey   = "taxietl.columns"
	rowBatchSize = 4096
)

// Options configures Write.
type Options struct {
	// Compression is gzip (default), snappy, zstd or none.
	Compression string
}

// Manifest describes a written file.
type Manifest struct {
	Path        string
	Rows        int64
	Bytes       int64
	Compression string
	// Checksum is the xxh3-64 of the file bytes, hex encoded.
	Checksum string
}

// Codec returns the compression codec for name.
func Codec(name string) (compress.Codec, error) {
	switch strings.ToLower(name) {
	case "", "gzip":
		return &parquet.Gzip, nil
	case "snappy":
		return &parquet.Snappy, nil
	case "zstd":
		return &parquet.Zstd, nil
	case "none", "uncompressed":
		return &parquet.Uncompressed, nil
	default:
		return nil, fmt.Errorf("parquetfile: unknown compression %q", name)
	}
}

// Schema builds the parquet schema for s.
func Schema(s table.Schema) (*parquet.Schema, error) {
	group := parquet.Group{}
	for _, f := range s {
		var n parquet.Node
		switch f.Kind {
		case table.KindString:
			n = parquet.String()
		case table.KindInt64:
			n = parquet.Int(64)
		case table.KindFloat64:
			n = parquet.Leaf(parquet.DoubleType)
		case table.KindBool:
			n = parquet.Leaf(parquet.BooleanType)
		case table.KindTimestamp:
			n = parquet.Timestamp(parquet.Microsecond)
		default:
			return nil, fmt.Errorf("parquetfile: column %q has unsupported kind %s", f.Name, f.Kind)
		}
		group[f.Name] = parquet.Optional(n)
	}
	return parquet.NewSchema(schemaName, group), nil
}

// Write writes t to path, creating parent directories. The file appears at
// path only once it is complete. Failures are IOErrors.
func Write(path string, t *table.Table, opt Options) (Manifest, error) {
	op := "write parquet " + path
	if t.NumCols() == 0 {
		return Manifest{}, etlerr.Newf(etlerr.KindIO, op, "table has no columns")
	}
	codec, err := Codec(opt.Compression)
	if err != nil {
		return Manifest{}, etlerr.New(etlerr.KindIO, op, err)
	}
	schema, err := Schema(t.Schema())
	if err != nil {
		return Manifest{}, etlerr.New(etlerr.KindIO, op, err)
	}
	order, _ := json.Marshal(t.Names())

	// Leaf index of each table column in the (name-sorted) parquet schema.
	leaf := make([]int, t.NumCols())
	for i, name := range t.Names() {
		lc, ok := schema.Lookup(name)
		if !ok {
			return Manifest{}, etlerr.Newf(etlerr.KindIO, op, "column %q missing from schema", name)
		}
		leaf[i] = lc.ColumnIndex
	}

	h := xxh3.New()
	cw := &countingWriter{}
	err = fsutil.WriteFileAtomic(path, func(w io.Writer) error {
		pw := parquet.NewWriter(io.MultiWriter(w, h, cw), schema,
			parquet.Compression(codec),
			parquet.KeyValueMetadata(columnsKey, string(order)),
			parquet.CreatedBy("taxietl", "", ""),
		)
		cols := t.Columns()
		rows := make([]parquet.Row, 0, rowBatchSize)
		for r := 0; r < t.NumRows(); r++ {
			row := make(parquet.Row, len(cols))
			for i, c := range cols {
				v, err := toValue(c.Values[r], c.Kind)
				if err != nil {
					return fmt.Errorf("column %q row %d: %w", c.Name, r, err)
				}
				row[leaf[i]] = v.Level(0, definition(c.Values[r]), leaf[i])
			}
			rows = append(rows, row)
			if len(rows) == rowBatchSize {
				if _, err := pw.WriteRows(rows); err != nil {
					return err
				}
				rows = rows[:0]
			}
		}
		if len(rows) > 0 {
			if _, err := pw.WriteRows(rows); err != nil {
				return err
			}
		}
		return pw.Close()
	})
	if err != nil {
		return Manifest{}, etlerr.New(etlerr.KindIO, op, err)
	}
	return Manifest{
		Path:        path,
		Rows:        int64(t.NumRows()),
		Bytes:       cw.n,
		Compression: codecName(opt.Compression),
		Checksum:    fmt.Sprintf("%016x", h.Sum64()),
	}, nil
}

// Read loads the parquet file at path into a table. Failures are IOErrors.
func Read(path string) (*table.Table, error) {
	op := "read parquet " + path
	f, err := os.Open(path)
	if err != nil {
		return nil, etlerr.New(etlerr.KindIO, op, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, etlerr.New(etlerr.KindIO, op, err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, etlerr.New(etlerr.KindIO, op, err)
	}

	fields := pf.Schema().Fields()
	decoders := make([]decoder, len(fields))
	for i, fd := range fields {
		d, err := decoderFor(fd)
		if err != nil {
			return nil, etlerr.New(etlerr.KindIO, op, err)
		}
		decoders[i] = d
	}

	nrows := pf.NumRows()
	values := make([][]any, len(fields))
	for i := range values {
		values[i] = make([]any, 0, nrows)
	}
	buf := make([]parquet.Row, rowBatchSize)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				for _, v := range row {
					c := v.Column()
					if v.IsNull() {
						values[c] = append(values[c], nil)
						continue
					}
					values[c] = append(values[c], decoders[c].decode(v))
				}
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				rows.Close()
				return nil, etlerr.New(etlerr.KindIO, op, err)
			}
		}
		rows.Close()
	}

	order := make([]int, len(fields))
	for i := range order {
		order[i] = i
	}
	if raw, ok := pf.Lookup(columnsKey); ok {
		var names []string
		if json.Unmarshal([]byte(raw), &names) == nil && len(names) == len(fields) {
			byName := make(map[string]int, len(fields))
			for i, fd := range fields {
				byName[fd.Name()] = i
			}
			for i, name := range names {
				if j, ok := byName[name]; ok {
					order[i] = j
				}
			}
		}
	}

	out := table.New()
	for _, j := range order {
		if err := out.AddColumn(fields[j].Name(), decoders[j].kind, values[j]); err != nil {
			return nil, etlerr.New(etlerr.KindIO, op, err)
		}
	}
	return out, nil
}

func definition(v any) int {
	if v == nil {
		return 0
	}
	return 1
}

func toValue(v any, kind table.Kind) (parquet.Value, error) {
	if v == nil {
		return parquet.NullValue(), nil
	}
	switch kind {
	case table.KindString:
		if s, ok := v.(string); ok {
			return parquet.ByteArrayValue([]byte(s)), nil
		}
	case table.KindInt64:
		if n, ok := v.(int64); ok {
			return parquet.Int64Value(n), nil
		}
	case table.KindFloat64:
		if f, ok := v.(float64); ok {
			return parquet.DoubleValue(f), nil
		}
	case table.KindBool:
		if b, ok := v.(bool); ok {
			return parquet.BooleanValue(b), nil
		}
	case table.KindTimestamp:
		if ts, ok := v.(time.Time); ok {
			return parquet.Int64Value(ts.UnixMicro()), nil
		}
	}
	return parquet.Value{}, fmt.Errorf("value %T does not match kind %s", v, kind)
}

type decoder struct {
	kind   table.Kind
	decode func(parquet.Value) any
}

func decoderFor(f parquet.Field) (decoder, error) {
	if !f.Leaf() || f.Repeated() {
		return decoder{}, fmt.Errorf("column %q: nested and repeated columns are not supported", f.Name())
	}
	typ := f.Type()
	if lt := typ.LogicalType(); lt != nil {
		switch {
		case lt.Timestamp != nil:
			unit := lt.Timestamp.Unit
			return decoder{table.KindTimestamp, func(v parquet.Value) any {
				n := v.Int64()
				switch {
				case unit.Millis != nil:
					return time.UnixMilli(n).UTC()
				case unit.Nanos != nil:
					return time.Unix(0, n).UTC()
				default:
					return time.UnixMicro(n).UTC()
				}
			}}, nil
		case lt.Date != nil:
			return decoder{table.KindTimestamp, func(v parquet.Value) any {
				return time.Unix(int64(v.Int32())*86400, 0).UTC()
			}}, nil
		}
	}
	switch typ.Kind() {
	case parquet.Boolean:
		return decoder{table.KindBool, func(v parquet.Value) any { return v.Boolean() }}, nil
	case parquet.Int32:
		return decoder{table.KindInt64, func(v parquet.Value) any { return int64(v.Int32()) }}, nil
	case parquet.Int64:
		return decoder{table.KindInt64, func(v parquet.Value) any { return v.Int64() }}, nil
	case parquet.Float:
		return decoder{table.KindFloat64, func(v parquet.Value) any { return float64(v.Float()) }}, nil
	case parquet.Double:
		return decoder{table.KindFloat64, func(v parquet.Value) any { return v.Double() }}, nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return decoder{table.KindString, func(v parquet.Value) any { return string(v.ByteArray()) }}, nil
	case parquet.Int96:
		return decoder{table.KindTimestamp, func(v parquet.Value) any { return int96Time(v) }}, nil
	}
	return decoder{}, fmt.Errorf("column %q: unsupported physical type %s", f.Name(), typ.Kind())
}

// int96Time decodes the legacy Impala timestamp: nanoseconds within the day
// followed by the Julian day number.
func int96Time(v parquet.Value) time.Time {
	i := v.Int96()
	nanos := int64(i[1])<<32 | int64(i[0])
	julian := int64(i[2])
	const unixEpochJulian = 2440588
	return time.Unix((julian-unixEpochJulian)*86400, nanos).UTC()
}

func codecName(name string) string {
	if name == "" {
		return "gzip"
	}
	return strings.ToLower(name)
}

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
