package ddl

// ColumnDef describes one column. Name is unquoted; quoting happens when a
// Dialect renders it.
type ColumnDef struct {
	Name     string
	SQLType  string
	Nullable bool
}

// TableDef is a table in an optional schema (dataset).
type TableDef struct {
	Schema  string
	Name    string
	Columns []ColumnDef
}
