package partition

import (
	"path/filepath"
	"strings"
	"testing"
)

const baseURL = "https://github.com/DataTalksClub/nyc-tlc-data/releases/download"

func TestPaths_Green202001(t *testing.T) {
	t.Parallel()

	p, err := New("green", 2020, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got, want := p.SourceURL(baseURL), baseURL+"/green/green_tripdata_2020-01.csv.gz"; got != want {
		t.Errorf("SourceURL = %q, want %q", got, want)
	}
	if got, want := p.ObjectKey(), "green_taxi/green_tripdata_2020-01.parquet"; got != want {
		t.Errorf("ObjectKey = %q, want %q", got, want)
	}
	wantLocal := filepath.Join("/data", "datasets", "green_taxi", "green_tripdata_2020-01.parquet")
	if got := p.LocalPath("/data"); got != wantLocal {
		t.Errorf("LocalPath = %q, want %q", got, wantLocal)
	}
	if got := p.Table(); got != "green_taxi" {
		t.Errorf("Table = %q, want green_taxi", got)
	}
	if got := p.String(); got != "green/2020-01" {
		t.Errorf("String = %q", got)
	}
}

func TestPaths_AreDeterministic(t *testing.T) {
	t.Parallel()

	cases := []Partition{
		{"green", 2020, 1},
		{"yellow", 2019, 12},
		{"fhv", 2021, 7},
		{"fhvhv", 2022, 10},
	}
	for _, p := range cases {
		p := p
		t.Run(p.String(), func(t *testing.T) {
			t.Parallel()
			q := Partition{Category: p.Category, Year: p.Year, Month: p.Month}
			if p.ObjectKey() != q.ObjectKey() || p.LocalPath("/b") != q.LocalPath("/b") ||
				p.SourceURL(baseURL) != q.SourceURL(baseURL) {
				t.Fatalf("derivations differ for identical inputs")
			}
			if !strings.HasSuffix(p.ObjectKey(), ".parquet") {
				t.Fatalf("ObjectKey %q lacks .parquet", p.ObjectKey())
			}
		})
	}
}

func TestPaths_DistinctPartitionsDoNotOverlap(t *testing.T) {
	t.Parallel()

	a := Partition{"green", 2020, 1}
	b := Partition{"green", 2020, 11}
	c := Partition{"yellow", 2020, 1}
	keys := map[string]bool{}
	for _, p := range []Partition{a, b, c} {
		if keys[p.ObjectKey()] {
			t.Fatalf("duplicate key %q", p.ObjectKey())
		}
		keys[p.ObjectKey()] = true
	}
}

func TestSourceURL_TrimsTrailingSlash(t *testing.T) {
	t.Parallel()

	p := Partition{"yellow", 2021, 3}
	got := p.SourceURL("http://example.test/rel/")
	if got != "http://example.test/rel/yellow/yellow_tripdata_2021-03.csv.gz" {
		t.Fatalf("SourceURL = %q", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		p       Partition
		wantErr bool
	}{
		{"ok", Partition{"green", 2020, 1}, false},
		{"empty category", Partition{"", 2020, 1}, true},
		{"path traversal", Partition{"../green", 2020, 1}, true},
		{"upper case", Partition{"Green", 2020, 1}, true},
		{"month zero", Partition{"green", 2020, 0}, true},
		{"month 13", Partition{"green", 2020, 13}, true},
		{"year too small", Partition{"green", 99, 1}, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.p.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}
