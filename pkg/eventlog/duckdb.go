package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/erpflow/erpflow/pkg/errors"
)

// DuckDBSource loads event logs from Parquet or CSV files through DuckDB.
// For large ERP extracts this is the preferred path: the scan, ordering, and
// column projection run inside the database instead of Go.
type DuckDBSource struct {
	db      *sql.DB
	columns CSVColumns
}

// NewDuckDBSource opens an in-memory DuckDB instance.
func NewDuckDBSource(columns CSVColumns) (*DuckDBSource, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeLogParseFailed, "failed to open duckdb")
	}
	return &DuckDBSource{db: db, columns: columns}, nil
}

// Close releases the database handle.
func (s *DuckDBSource) Close() error {
	return s.db.Close()
}

// LoadParquet reads an event log from a Parquet file.
func (s *DuckDBSource) LoadParquet(ctx context.Context, path, name string) (*Log, error) {
	readFunc := fmt.Sprintf("read_parquet('%s')", escapePath(path))
	return s.load(ctx, readFunc, name)
}

// LoadCSV reads an event log from a CSV file using DuckDB's sniffing reader.
func (s *DuckDBSource) LoadCSV(ctx context.Context, path, name string) (*Log, error) {
	readFunc := fmt.Sprintf("read_csv_auto('%s', header=true, ignore_errors=true)", escapePath(path))
	return s.load(ctx, readFunc, name)
}

func (s *DuckDBSource) load(ctx context.Context, readFunc, name string) (*Log, error) {
	resourceExpr := "NULL"
	if s.columns.Resource != "" {
		resourceExpr = fmt.Sprintf(`"%s"::VARCHAR`, s.columns.Resource)
	}

	// Ordering by case then timestamp guarantees trace monotonicity on insert.
	query := fmt.Sprintf(`
		SELECT
			"%s"::VARCHAR AS case_id,
			"%s"::VARCHAR AS activity,
			"%s"::TIMESTAMP AS ts,
			%s AS resource
		FROM %s
		WHERE "%s" IS NOT NULL AND "%s" IS NOT NULL
		ORDER BY case_id, ts
	`, s.columns.CaseID, s.columns.Activity, s.columns.Timestamp,
		resourceExpr, readFunc, s.columns.CaseID, s.columns.Timestamp)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeLogParseFailed, "duckdb scan failed")
	}
	defer rows.Close()

	log := New(name)
	for rows.Next() {
		var caseID, activity string
		var ts time.Time
		var resource sql.NullString
		if err := rows.Scan(&caseID, &activity, &ts, &resource); err != nil {
			return nil, errors.Wrap(err, errors.CodeLogParseFailed, "duckdb row scan failed")
		}
		ev := Event{Activity: activity, Timestamp: ts}
		if resource.Valid {
			ev.Resource = resource.String
		}
		if err := log.AddEvent(caseID, ev); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeLogParseFailed, "duckdb iteration failed")
	}

	return log, nil
}

func escapePath(path string) string {
	return strings.ReplaceAll(path, "'", "''")
}
