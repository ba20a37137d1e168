package ddl

import (
	"strings"
	"testing"

	"taxietl/internal/table"
)

var greenSchema = table.Schema{
	{Name: "VendorID", Kind: table.KindInt64},
	{Name: "lpep_pickup_datetime", Kind: table.KindTimestamp},
	{Name: "store_and_fwd_flag", Kind: table.KindString},
	{Name: "trip_distance", Kind: table.KindFloat64},
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d    Dialect
		want []string
	}{
		{Postgres, []string{
			`CREATE TABLE IF NOT EXISTS "trips_data_all"."green_taxi" (`,
			`"VendorID" BIGINT,`,
			`"lpep_pickup_datetime" TIMESTAMPTZ,`,
			`"trip_distance" DOUBLE PRECISION`,
		}},
		{MSSQL, []string{
			`IF OBJECT_ID(N'[trips_data_all].[green_taxi]', N'U') IS NULL`,
			`CREATE TABLE [trips_data_all].[green_taxi] (`,
			`[store_and_fwd_flag] NVARCHAR(MAX),`,
			"END",
		}},
		{MySQL, []string{"CREATE TABLE IF NOT EXISTS `trips_data_all`.`green_taxi` (", "`lpep_pickup_datetime` DATETIME(6),"}},
		{SQLite, []string{`CREATE TABLE IF NOT EXISTS "trips_data_all__green_taxi" (`, `"VendorID" INTEGER,`}},
		{DuckDB, []string{`CREATE TABLE IF NOT EXISTS "trips_data_all"."green_taxi" (`, `"store_and_fwd_flag" VARCHAR,`}},
	}
	for _, tt := range tests {
		td, err := tt.d.FromSchema("trips_data_all", "green_taxi", greenSchema)
		if err != nil {
			t.Fatalf("%s FromSchema: %v", tt.d.Name, err)
		}
		got, err := tt.d.CreateTableSQL(td)
		if err != nil {
			t.Fatalf("%s CreateTableSQL: %v", tt.d.Name, err)
		}
		for _, w := range tt.want {
			if !strings.Contains(got, w) {
				t.Errorf("%s: missing %q in\n%s", tt.d.Name, w, got)
			}
		}
		if strings.Contains(got, "NOT NULL") {
			t.Errorf("%s: columns must be nullable:\n%s", tt.d.Name, got)
		}
	}
}

func TestCreateSchemaSQL(t *testing.T) {
	t.Parallel()

	if got := Postgres.CreateSchemaSQL("trips_data_all"); got != `CREATE SCHEMA IF NOT EXISTS "trips_data_all"` {
		t.Errorf("postgres = %q", got)
	}
	if got := MySQL.CreateSchemaSQL("trips"); got != "CREATE DATABASE IF NOT EXISTS `trips`" {
		t.Errorf("mysql = %q", got)
	}
	if got := MSSQL.CreateSchemaSQL("trips"); got != "IF SCHEMA_ID(N'trips') IS NULL EXEC('CREATE SCHEMA [trips]')" {
		t.Errorf("mssql = %q", got)
	}
	if got := SQLite.CreateSchemaSQL("trips"); got != "" {
		t.Errorf("sqlite = %q, want empty", got)
	}
	if got := Postgres.CreateSchemaSQL(""); got != "" {
		t.Errorf("empty schema = %q", got)
	}
}

func TestQuoteEscapes(t *testing.T) {
	t.Parallel()

	if got := Postgres.Quote(`we"ird`); got != `"we""ird"` {
		t.Errorf("postgres = %s", got)
	}
	if got := MSSQL.Quote("a]b"); got != "[a]]b]" {
		t.Errorf("mssql = %s", got)
	}
	if got := MySQL.Quote("a`b"); got != "`a``b`" {
		t.Errorf("mysql = %s", got)
	}
}

func TestInsertSQL(t *testing.T) {
	t.Parallel()

	fqn := Postgres.FQN("s", "t")
	if got := Postgres.InsertSQL(fqn, []string{"a", "b"}, 2); got != `INSERT INTO "s"."t" ("a", "b") VALUES ($1, $2), ($3, $4)` {
		t.Errorf("postgres = %s", got)
	}
	if got := MSSQL.InsertSQL("[t]", []string{"a"}, 2); got != "INSERT INTO [t] ([a]) VALUES (@p1), (@p2)" {
		t.Errorf("mssql = %s", got)
	}
	if got := SQLite.InsertSQL(`"t"`, []string{"a", "b"}, 1); got != `INSERT INTO "t" ("a", "b") VALUES (?, ?)` {
		t.Errorf("sqlite = %s", got)
	}
}

func TestCreateTableSQL_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Postgres.CreateTableSQL(TableDef{Name: "t"}); err == nil {
		t.Error("no columns accepted")
	}
	if _, err := Postgres.CreateTableSQL(TableDef{Columns: []ColumnDef{{Name: "a", SQLType: "TEXT"}}}); err == nil {
		t.Error("empty name accepted")
	}
	if _, err := Postgres.CreateTableSQL(TableDef{Name: "t", Columns: []ColumnDef{{Name: "a"}}}); err == nil {
		t.Error("missing type accepted")
	}
	if _, err := Postgres.FromSchema("", "t", table.Schema{{Name: "x", Kind: table.Kind(99)}}); err == nil {
		t.Error("unknown kind accepted")
	}
}
