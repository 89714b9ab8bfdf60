package eventlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/erpflow/erpflow/pkg/errors"
)

// CSVColumns maps event fields to CSV header names.
type CSVColumns struct {
	CaseID    string `yaml:"case_id"`
	Activity  string `yaml:"activity"`
	Timestamp string `yaml:"timestamp"`
	Resource  string `yaml:"resource"`
}

// CSVOptions configures the CSV loader.
type CSVOptions struct {
	Columns         CSVColumns
	Delimiter       rune
	TimestampLayout string // optional; auto-detected when empty
}

// DefaultCSVOptions returns the conventional column names used by ERP
// activity exports.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Columns: CSVColumns{
			CaseID:    "case_id",
			Activity:  "activity",
			Timestamp: "timestamp",
			Resource:  "resource",
		},
		Delimiter: ',',
	}
}

// timestampLayouts are tried in order when no explicit layout is configured.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601-ish timestamp string at the ingest
// boundary. Layout may be empty, in which case common layouts are tried.
func ParseTimestamp(value, layout string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if layout != "" {
		ts, err := time.Parse(layout, value)
		if err != nil {
			return time.Time{}, errors.Wrap(err, errors.CodeInvalidTimestamp, "failed to parse timestamp").
				WithContext("value", value)
		}
		return ts, nil
	}
	for _, l := range timestampLayouts {
		if ts, err := time.Parse(l, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errors.New(errors.CodeInvalidTimestamp, "failed to parse timestamp").
		WithContext("value", value)
}

// LoadCSV reads an event log from a CSV stream. Rows must be grouped or
// sorted so that each case's events arrive in timestamp order; rows that
// violate trace ordering fail the load.
func LoadCSV(r io.Reader, name string, opts CSVOptions) (*Log, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeLogParseFailed, "failed to read CSV header")
	}

	idx := map[string]int{}
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}

	caseIdx, ok := idx[strings.ToLower(opts.Columns.CaseID)]
	if !ok {
		return nil, missingColumn(opts.Columns.CaseID, header)
	}
	actIdx, ok := idx[strings.ToLower(opts.Columns.Activity)]
	if !ok {
		return nil, missingColumn(opts.Columns.Activity, header)
	}
	tsIdx, ok := idx[strings.ToLower(opts.Columns.Timestamp)]
	if !ok {
		return nil, missingColumn(opts.Columns.Timestamp, header)
	}
	resIdx := -1
	if opts.Columns.Resource != "" {
		if i, ok := idx[strings.ToLower(opts.Columns.Resource)]; ok {
			resIdx = i
		}
	}

	log := New(name)
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeLogParseFailed, "CSV parse error at row %d", row)
		}
		row++

		ts, err := ParseTimestamp(record[tsIdx], opts.TimestampLayout)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeLogParseFailed, "row %d", row)
		}

		ev := Event{
			Activity:  strings.TrimSpace(record[actIdx]),
			Timestamp: ts,
		}
		if resIdx >= 0 && resIdx < len(record) {
			ev.Resource = strings.TrimSpace(record[resIdx])
		}
		if err := log.AddEvent(strings.TrimSpace(record[caseIdx]), ev); err != nil {
			return nil, err
		}
	}

	return log, nil
}

// LoadCSVFile reads an event log from a CSV file on disk.
func LoadCSVFile(path string, opts CSVOptions) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeLogParseFailed, "failed to open %q", path)
	}
	defer f.Close()

	name := strings.TrimSuffix(fileBase(path), ".csv")
	return LoadCSV(f, name, opts)
}

func missingColumn(column string, available []string) error {
	return errors.New(errors.CodeLogParseFailed, "required column not found").
		WithContext("column", column).
		WithContext("available", fmt.Sprintf("%v", available))
}

func fileBase(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
