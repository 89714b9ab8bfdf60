// Package extract defines the source-system extraction layer: extractors
// declare the tables they read, pull records in mock or live mode, and a
// runner makes extraction resumable through the checkpoint store.
package extract

import (
	"context"
	"fmt"

	"github.com/erpflow/erpflow/pkg/errors"
)

// Mode selects the extraction data source.
type Mode string

const (
	// ModeMock extracts generated sample data. The default for assessment
	// runs.
	ModeMock Mode = "mock"

	// ModeLive extracts from the connected source system. Extractors that
	// have no live connector return a coded error.
	ModeLive Mode = "live"
)

// Valid reports whether the mode is one of the known values.
func (m Mode) Valid() bool {
	return m == ModeMock || m == ModeLive
}

// Table describes one source table an extractor reads.
type Table struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Critical    bool   `json:"critical"`
}

// Record is one extracted source record. Key must be unique within the
// extractor's output; it doubles as the checkpoint key.
type Record struct {
	Key    string                 `json:"key"`
	Table  string                 `json:"table"`
	Fields map[string]interface{} `json:"fields"`
}

// Extractor pulls records for one migration object from the source system.
type Extractor interface {
	// ID is the stable identifier, e.g. "customer_master".
	ID() string

	// Name is the human-readable label.
	Name() string

	// Tables lists the source tables this extractor reads.
	Tables() []Table

	// Extract pulls all records in the given mode.
	Extract(ctx context.Context, mode Mode) ([]Record, error)
}

// CriticalTables filters the extractor's tables down to the critical ones.
func CriticalTables(e Extractor) []Table {
	var out []Table
	for _, t := range e.Tables() {
		if t.Critical {
			out = append(out, t)
		}
	}
	return out
}

// liveNotSupported is the shared refusal for mock-only extractors.
func liveNotSupported(extractorID string) error {
	return errors.LiveNotSupported(extractorID)
}

// validateRecords checks extractor output before it enters the pipeline:
// every record needs a non-empty unique key.
func validateRecords(extractorID string, records []Record) error {
	seen := make(map[string]bool, len(records))
	for i, rec := range records {
		if rec.Key == "" {
			return errors.Newf(errors.CodeExtractFailed, "extractor %s: record %d has an empty key", extractorID, i)
		}
		if seen[rec.Key] {
			return errors.Newf(errors.CodeExtractFailed, "extractor %s: duplicate record key %q", extractorID, rec.Key)
		}
		seen[rec.Key] = true
	}
	return nil
}

// recordCheckpointKey is the checkpoint key for a record.
func recordCheckpointKey(rec Record) string {
	if rec.Table == "" {
		return rec.Key
	}
	return fmt.Sprintf("%s.%s", rec.Table, rec.Key)
}
