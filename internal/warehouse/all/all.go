// Package all registers every warehouse backend.
package all

import (
	_ "taxietl/internal/warehouse/bigquery"
	_ "taxietl/internal/warehouse/duckdb"
	_ "taxietl/internal/warehouse/mssql"
	_ "taxietl/internal/warehouse/mysql"
	_ "taxietl/internal/warehouse/postgres"
	_ "taxietl/internal/warehouse/sqlite"
)
