// Package ddl renders the SQL the warehouse backends need: schema and table
// creation guarded against re-creation, qualified names, and multi-row
// INSERT statements. Each supported database is a Dialect value.
package ddl

import (
	"fmt"
	"strings"

	"taxietl/internal/table"
)

// Dialect captures the differences between SQL databases that matter here.
type Dialect struct {
	Name string

	open, close string
	types       map[table.Kind]string

	// placeholder renders the n-th (1-based) bind parameter.
	placeholder func(n int) string

	// flatSchema joins schema and table into one identifier for databases
	// without schemas.
	flatSchema bool

	createSchema func(quoted, raw string) string
	createTable  func(fqn, rawFQN, body string) string
}

var (
	Postgres = Dialect{
		Name: "postgres", open: `"`, close: `"`,
		types: map[table.Kind]string{
			table.KindString: "TEXT", table.KindInt64: "BIGINT", table.KindFloat64: "DOUBLE PRECISION",
			table.KindBool: "BOOLEAN", table.KindTimestamp: "TIMESTAMPTZ",
		},
		placeholder:  func(n int) string { return fmt.Sprintf("$%d", n) },
		createSchema: func(q, _ string) string { return "CREATE SCHEMA IF NOT EXISTS " + q },
		createTable:  ifNotExists,
	}

	MSSQL = Dialect{
		Name: "mssql", open: "[", close: "]",
		types: map[table.Kind]string{
			table.KindString: "NVARCHAR(MAX)", table.KindInt64: "BIGINT", table.KindFloat64: "FLOAT",
			table.KindBool: "BIT", table.KindTimestamp: "DATETIME2",
		},
		placeholder: func(n int) string { return fmt.Sprintf("@p%d", n) },
		// T-SQL has no IF NOT EXISTS for either statement.
		createSchema: func(q, raw string) string {
			return fmt.Sprintf("IF SCHEMA_ID(N'%s') IS NULL EXEC('CREATE SCHEMA %s')", escapeLiteral(raw), escapeLiteral(q))
		},
		createTable: func(fqn, rawFQN, body string) string {
			return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  CREATE TABLE %s (\n  %s\n  );\nEND", escapeLiteral(rawFQN), fqn, body)
		},
	}

	MySQL = Dialect{
		Name: "mysql", open: "`", close: "`",
		types: map[table.Kind]string{
			table.KindString: "TEXT", table.KindInt64: "BIGINT", table.KindFloat64: "DOUBLE",
			table.KindBool: "BOOLEAN", table.KindTimestamp: "DATETIME(6)",
		},
		placeholder:  func(int) string { return "?" },
		createSchema: func(q, _ string) string { return "CREATE DATABASE IF NOT EXISTS " + q },
		createTable:  ifNotExists,
	}

	SQLite = Dialect{
		Name: "sqlite", open: `"`, close: `"`,
		types: map[table.Kind]string{
			table.KindString: "TEXT", table.KindInt64: "INTEGER", table.KindFloat64: "REAL",
			table.KindBool: "BOOLEAN", table.KindTimestamp: "TIMESTAMP",
		},
		placeholder: func(int) string { return "?" },
		flatSchema:  true,
		createTable: ifNotExists,
	}

	DuckDB = Dialect{
		Name: "duckdb", open: `"`, close: `"`,
		types: map[table.Kind]string{
			table.KindString: "VARCHAR", table.KindInt64: "BIGINT", table.KindFloat64: "DOUBLE",
			table.KindBool: "BOOLEAN", table.KindTimestamp: "TIMESTAMPTZ",
		},
		placeholder:  func(int) string { return "?" },
		createSchema: func(q, _ string) string { return "CREATE SCHEMA IF NOT EXISTS " + q },
		createTable:  ifNotExists,
	}
)

func ifNotExists(fqn, _, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", fqn, body)
}

// Quote quotes one identifier, doubling any embedded closing quote.
func (d Dialect) Quote(ident string) string {
	return d.open + strings.ReplaceAll(ident, d.close, d.close+d.close) + d.close
}

// TableName returns the unquoted physical table name. Databases without
// schemas get "<schema>__<table>".
func (d Dialect) TableName(schema, name string) string {
	if d.flatSchema && schema != "" {
		return schema + "__" + name
	}
	return name
}

// FQN returns the quoted, qualified table name.
func (d Dialect) FQN(schema, name string) string {
	if d.flatSchema || schema == "" {
		return d.Quote(d.TableName(schema, name))
	}
	return d.Quote(schema) + "." + d.Quote(name)
}

// SQLType maps a column kind to this dialect's type.
func (d Dialect) SQLType(k table.Kind) (string, error) {
	t, ok := d.types[k]
	if !ok {
		return "", fmt.Errorf("ddl: %s has no type for %s", d.Name, k)
	}
	return t, nil
}

// FromSchema builds a nullable TableDef for s.
func (d Dialect) FromSchema(schema, name string, s table.Schema) (TableDef, error) {
	td := TableDef{Schema: schema, Name: name, Columns: make([]ColumnDef, 0, len(s))}
	for _, f := range s {
		typ, err := d.SQLType(f.Kind)
		if err != nil {
			return TableDef{}, fmt.Errorf("ddl: column %q: %w", f.Name, err)
		}
		td.Columns = append(td.Columns, ColumnDef{Name: f.Name, SQLType: typ, Nullable: true})
	}
	return td, nil
}

// CreateSchemaSQL returns the statement that creates schema if missing, or
// "" when the dialect has no schemas or schema is empty.
func (d Dialect) CreateSchemaSQL(schema string) string {
	if schema == "" || d.flatSchema || d.createSchema == nil {
		return ""
	}
	return d.createSchema(d.Quote(schema), schema)
}

// CreateTableSQL renders a guarded CREATE TABLE for t.
func (d Dialect) CreateTableSQL(t TableDef) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", t.Name)
		}
		if strings.TrimSpace(c.SQLType) == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", c.Name)
		}
		col := d.Quote(c.Name) + " " + c.SQLType
		if !c.Nullable {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	raw := d.TableName(t.Schema, t.Name)
	if !d.flatSchema && t.Schema != "" {
		raw = d.Quote(t.Schema) + "." + d.Quote(t.Name)
	}
	return d.createTable(d.FQN(t.Schema, t.Name), raw, strings.Join(cols, ",\n  ")), nil
}

// InsertSQL renders a multi-row INSERT of rows x len(columns) parameters.
func (d Dialect) InsertSQL(fqn string, columns []string, rows int) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(fqn)
	sb.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.Quote(c))
	}
	sb.WriteString(") VALUES ")
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for i := range columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.placeholder(n))
			n++
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
