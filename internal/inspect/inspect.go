// Package inspect samples the head of a monthly trip file and reports what
// the web-to-store pipeline would make of it: the columns, their inferred
// kinds, null counts, and anything the normalization rules would trip over.
//
// Only a prefix of the file is fetched. A gzip stream cut mid-block still
// yields the rows decoded so far; the trailing partial line is dropped.
package inspect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"taxietl/internal/etlerr"
	"taxietl/internal/parser/csv"
	"taxietl/internal/table"
	"taxietl/internal/transformer"
)

// DefaultMaxBytes is how much of the compressed file Source fetches.
const DefaultMaxBytes = 1 << 20

// Peeker fetches the first n bytes of a location. *datasource.Router
// implements it.
type Peeker interface {
	FetchFirstBytes(ctx context.Context, url string, n int) ([]byte, error)
}

// Column describes one sampled column after normalization.
type Column struct {
	Name    string
	Kind    table.Kind
	Nulls   int
	Example string
}

// Report is the result of profiling a sample.
type Report struct {
	URL          string
	FetchedBytes int
	Gzip         bool
	Rows         int
	Columns      []Column
	Warnings     []string
}

// Source fetches up to maxBytes of url and profiles it.
func Source(ctx context.Context, p Peeker, url string, maxBytes int) (Report, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	head, err := p.FetchFirstBytes(ctx, url, maxBytes)
	if err != nil {
		return Report{}, etlerr.New(etlerr.KindFetch, "inspect.source", err)
	}
	data, gz, err := Inflate(head, len(head) >= maxBytes)
	if err != nil {
		return Report{}, etlerr.New(etlerr.KindFetch, "inspect.source", err)
	}
	rep, err := Profile(ctx, data)
	rep.URL = url
	rep.FetchedBytes = len(head)
	rep.Gzip = gz
	return rep, err
}

// Inflate decompresses a gzip prefix, or passes plain text through. When
// truncated is set, or the stream ends early, everything after the last
// newline is dropped so no partial row reaches the CSV reader.
func Inflate(prefix []byte, truncated bool) (data []byte, isGzip bool, err error) {
	if len(prefix) >= 2 && prefix[0] == 0x1f && prefix[1] == 0x8b {
		isGzip = true
		zr, err := gzip.NewReader(bytes.NewReader(prefix))
		if err != nil {
			return nil, true, fmt.Errorf("gzip header: %w", err)
		}
		data, err = io.ReadAll(zr)
		switch {
		case errors.Is(err, io.ErrUnexpectedEOF):
			truncated = true
		case err != nil:
			return nil, true, fmt.Errorf("gzip: %w", err)
		}
	} else {
		data = prefix
	}
	if truncated {
		if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
			data = data[:i+1]
		} else {
			data = nil
		}
	}
	return data, isGzip, nil
}

// Profile reads CSV text and dry-runs the web normalization rules on it.
func Profile(ctx context.Context, data []byte) (Report, error) {
	t, err := csv.ReadTable(ctx, bytes.NewReader(data), csv.Options{})
	if err != nil {
		return Report{}, etlerr.New(etlerr.KindTransform, "inspect.profile", err)
	}
	rep := Report{Rows: t.NumRows()}
	if t.NumCols() == 0 {
		rep.Warnings = append(rep.Warnings, "sample has no header row")
		return rep, nil
	}

	for _, name := range t.Names() {
		if n := NormalizeName(name); n != strings.ToLower(name) {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("column %q is not a plain identifier (suggest %q)", name, n))
		}
	}
	if !t.HasColumn(transformer.PassengerCount) {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("no %s column; null filling will be skipped", transformer.PassengerCount))
	}
	hasTS := false
	for _, c := range transformer.TimestampColumns {
		hasTS = hasTS || t.HasColumn(c)
	}
	if !hasTS {
		rep.Warnings = append(rep.Warnings, "no pickup/dropoff timestamp columns recognized")
	}

	if err := transformer.WebRules().Apply(t); err != nil {
		rep.Warnings = append(rep.Warnings, "normalization fails: "+err.Error())
	}

	for _, c := range t.Columns() {
		col := Column{Name: c.Name, Kind: c.Kind, Nulls: c.NullCount()}
		for _, v := range c.Values {
			if v != nil {
				col.Example = fmt.Sprint(v)
				break
			}
		}
		rep.Columns = append(rep.Columns, col)
	}
	return rep, nil
}

// NormalizeName turns header text into a lowercase ASCII identifier:
// accents are stripped, spaces, dashes and dots become underscores and
// anything else is dropped. An empty result becomes "col".
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "col"
	}
	return name
}
