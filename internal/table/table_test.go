package table

import (
	"reflect"
	"strings"
	"testing"
)

func TestAddColumn_RowCountAndLookup(t *testing.T) {
	t.Parallel()

	tbl := New()
	if err := tbl.AddColumn("VendorID", KindInt64, []any{int64(1), int64(2), nil}); err != nil {
		t.Fatalf("AddColumn: %v", err)
	}
	if err := tbl.AddColumn("store_and_fwd_flag", KindString, []any{"N", nil, "Y"}); err != nil {
		t.Fatalf("AddColumn: %v", err)
	}

	if tbl.NumRows() != 3 || tbl.NumCols() != 2 {
		t.Fatalf("shape = %dx%d, want 3x2", tbl.NumRows(), tbl.NumCols())
	}
	if !reflect.DeepEqual(tbl.Names(), []string{"VendorID", "store_and_fwd_flag"}) {
		t.Fatalf("Names = %v", tbl.Names())
	}
	c, ok := tbl.Column("VendorID")
	if !ok || c.NullCount() != 1 {
		t.Fatalf("VendorID lookup ok=%v nulls=%d", ok, c.NullCount())
	}
	if tbl.HasColumn("passenger_count") {
		t.Fatalf("unexpected column")
	}

	row := tbl.Row(1, nil)
	if !reflect.DeepEqual(row, []any{int64(2), nil}) {
		t.Fatalf("Row(1) = %#v", row)
	}

	want := Schema{{"VendorID", KindInt64}, {"store_and_fwd_flag", KindString}}
	if !reflect.DeepEqual(tbl.Schema(), want) {
		t.Fatalf("Schema = %#v", tbl.Schema())
	}
}

func TestAddColumn_Errors(t *testing.T) {
	t.Parallel()

	tbl := New()
	_ = tbl.AddColumn("a", KindInt64, []any{int64(1)})

	tests := []struct {
		name    string
		col     string
		values  []any
		wantErr string
	}{
		{"duplicate", "a", []any{int64(2)}, "duplicate column"},
		{"length mismatch", "b", []any{int64(1), int64(2)}, "has 2 rows"},
		{"empty name", " ", []any{int64(1)}, "empty column name"},
	}
	for _, tt := range tests {
		err := tbl.AddColumn(tt.col, KindInt64, tt.values)
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%s: err=%v, want containing %q", tt.name, err, tt.wantErr)
		}
	}
}

func TestRow_ReusesBuffer(t *testing.T) {
	t.Parallel()

	tbl := New()
	_ = tbl.AddColumn("a", KindInt64, []any{int64(1), int64(2)})
	buf := make([]any, 0, 4)
	out := tbl.Row(0, buf)
	if &out[0] != &buf[:1][0] {
		t.Fatalf("Row did not reuse dst backing array")
	}
}
