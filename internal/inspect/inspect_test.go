package inspect

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"taxietl/internal/etlerr"
	"taxietl/internal/table"
)

const greenCSV = "VendorID,lpep_pickup_datetime,lpep_dropoff_datetime,passenger_count,trip_distance\n" +
	"2,2020-01-01 00:45:58,2020-01-01 00:56:39,,1.28\n" +
	"1,2020-01-01 00:41:38,2020-01-01 00:52:49,1,2.7\n" +
	"2,2020-01-01 00:52:46,2020-01-01 01:14:21,2,6.98\n"

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type peeker struct {
	data []byte
	err  error
}

func (p peeker) FetchFirstBytes(_ context.Context, _ string, n int) ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	if len(p.data) > n {
		return p.data[:n], nil
	}
	return p.data, nil
}

func TestInflate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        []byte
		truncated bool
		want      string
		wantGzip  bool
	}{
		{"plain whole", []byte("a,b\n1,2\n"), false, "a,b\n1,2\n", false},
		{"plain cut", []byte("a,b\n1,2\n3,"), true, "a,b\n1,2\n", false},
		{"plain no newline", []byte("a,b"), true, "", false},
		{"gzip whole", gz(t, "a,b\n1,2\n"), false, "a,b\n1,2\n", true},
	}
	for _, tt := range tests {
		got, isGzip, err := Inflate(tt.in, tt.truncated)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if string(got) != tt.want || isGzip != tt.wantGzip {
			t.Errorf("%s: got %q gzip=%v, want %q gzip=%v", tt.name, got, isGzip, tt.want, tt.wantGzip)
		}
	}
}

func TestInflate_TruncatedGzipKeepsWholeRows(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	sb.WriteString("id,name\n")
	for i := 0; i < 5000; i++ {
		sb.WriteString("12345,some longer text to defeat compression ")
		sb.WriteString(strings.Repeat(string(rune('a'+i%26)), i%40))
		sb.WriteString("\n")
	}
	full := gz(t, sb.String())
	data, _, err := Inflate(full[:len(full)/2], true)
	if err != nil {
		t.Fatalf("Inflate: %v", err)
	}
	if len(data) == 0 || !strings.HasPrefix(string(data), "id,name\n") {
		t.Fatalf("expected the header to survive, got %d bytes", len(data))
	}
	if data[len(data)-1] != '\n' {
		t.Fatal("partial trailing row was not dropped")
	}
}

func TestSource_Green(t *testing.T) {
	t.Parallel()

	rep, err := Source(context.Background(), peeker{data: gz(t, greenCSV)}, "http://x/green.csv.gz", 0)
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if !rep.Gzip || rep.Rows != 3 || len(rep.Columns) != 5 {
		t.Fatalf("report = %+v", rep)
	}
	if len(rep.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", rep.Warnings)
	}
	byName := map[string]Column{}
	for _, c := range rep.Columns {
		byName[c.Name] = c
	}
	if c := byName["lpep_pickup_datetime"]; c.Kind != table.KindTimestamp {
		t.Errorf("pickup kind = %s", c.Kind)
	}
	if c := byName["passenger_count"]; c.Nulls != 0 {
		t.Errorf("passenger_count nulls after normalization = %d", c.Nulls)
	}
	if c := byName["trip_distance"]; c.Kind != table.KindFloat64 || c.Example != "1.28" {
		t.Errorf("trip_distance = %+v", c)
	}
}

func TestProfile_Warnings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		csv  string
		want string
	}{
		{"no passenger column", "lpep_pickup_datetime\n2020-01-01 00:00:00\n", "no passenger_count"},
		{"no timestamps", "passenger_count\n1\n", "no pickup/dropoff"},
		{"odd header", "Pickup Zone,passenger_count,lpep_pickup_datetime\nA,1,2020-01-01 00:00:00\n", `suggest "pickup_zone"`},
		{"unparseable timestamp", "lpep_pickup_datetime,passenger_count\nyesterday,1\n", "normalization fails"},
		{"empty", "", "no header"},
	}
	for _, tt := range tests {
		rep, err := Profile(context.Background(), []byte(tt.csv))
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if !strings.Contains(strings.Join(rep.Warnings, "\n"), tt.want) {
			t.Errorf("%s: warnings %v, want one containing %q", tt.name, rep.Warnings, tt.want)
		}
	}
}

func TestSource_FetchErrorIsClassified(t *testing.T) {
	t.Parallel()

	_, err := Source(context.Background(), peeker{err: errors.New("404")}, "http://x/missing", 10)
	if !errors.Is(err, etlerr.ErrFetch) {
		t.Fatalf("err = %v, want FetchError", err)
	}
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"VendorID":        "vendorid",
		" Pickup Zone ":   "pickup_zone",
		"fare.amount-usd": "fare_amount_usd",
		"Año":             "ano",
		"__x__":           "x",
		"%%":              "col",
	}
	for in, want := range tests {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
