package eventlog

import (
	"strings"
	"testing"
	"time"

	"github.com/erpflow/erpflow/pkg/errors"
)

const sampleCSV = `case_id,activity,timestamp,resource
c1,Create Order,2025-03-01 08:00:00,alice
c1,Pick,2025-03-01 10:30:00,bob
c1,Ship,2025-03-02 09:00:00,bob
c2,Create Order,2025-03-01 09:15:00,alice
c2,Ship,2025-03-01 17:00:00,carol
`

// TestLoadCSV verifies the standard-column load path.
func TestLoadCSV(t *testing.T) {
	log, err := LoadCSV(strings.NewReader(sampleCSV), "orders", DefaultCSVOptions())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if log.CaseCount() != 2 || log.EventCount() != 5 {
		t.Errorf("counts = %d cases / %d events, want 2 / 5", log.CaseCount(), log.EventCount())
	}

	tr := log.Trace("c1")
	if tr == nil || tr.Len() != 3 {
		t.Fatalf("c1 trace = %v", tr)
	}
	if got := tr.Event(1); got.Activity != "Pick" || got.Resource != "bob" {
		t.Errorf("c1[1] = %+v", got)
	}
	if tr.Event(0).Timestamp.Hour() != 8 {
		t.Errorf("timestamp not parsed: %v", tr.Event(0).Timestamp)
	}
}

// TestLoadCSVCustomColumns verifies header remapping and delimiter override.
func TestLoadCSVCustomColumns(t *testing.T) {
	data := "Vorgang;Taetigkeit;Zeitpunkt\nc1;Anlegen;2025-03-01T08:00:00Z\n"

	opts := DefaultCSVOptions()
	opts.Columns = CSVColumns{CaseID: "Vorgang", Activity: "Taetigkeit", Timestamp: "Zeitpunkt"}
	opts.Delimiter = ';'

	log, err := LoadCSV(strings.NewReader(data), "sap", opts)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if log.CaseCount() != 1 {
		t.Errorf("case count = %d", log.CaseCount())
	}
	if got := log.Trace("c1").Event(0).Activity; got != "Anlegen" {
		t.Errorf("activity = %q", got)
	}
}

// TestLoadCSVMissingColumn verifies a clear parse error on a bad header.
func TestLoadCSVMissingColumn(t *testing.T) {
	data := "id,act,ts\nc1,A,2025-03-01\n"
	_, err := LoadCSV(strings.NewReader(data), "bad", DefaultCSVOptions())
	if !errors.IsCode(err, errors.CodeLogParseFailed) {
		t.Errorf("expected %s, got %v", errors.CodeLogParseFailed, err)
	}
}

// TestLoadCSVBadTimestamp verifies malformed timestamps fail the load.
func TestLoadCSVBadTimestamp(t *testing.T) {
	data := "case_id,activity,timestamp\nc1,A,yesterday\n"
	_, err := LoadCSV(strings.NewReader(data), "bad", DefaultCSVOptions())
	if !errors.IsCode(err, errors.CodeLogParseFailed) {
		t.Errorf("expected %s, got %v", errors.CodeLogParseFailed, err)
	}
}

// TestParseTimestampLayouts verifies layout auto-detection.
func TestParseTimestampLayouts(t *testing.T) {
	cases := []string{
		"2025-03-01T08:00:00Z",
		"2025-03-01T08:00:00+01:00",
		"2025-03-01 08:00:00",
		"2025-03-01 08:00:00.123",
		"2025-03-01",
	}
	for _, value := range cases {
		if _, err := ParseTimestamp(value, ""); err != nil {
			t.Errorf("ParseTimestamp(%q) = %v", value, err)
		}
	}

	if _, err := ParseTimestamp("01.03.2025", ""); err == nil {
		t.Error("expected error for unsupported layout")
	}
	if ts, err := ParseTimestamp("01.03.2025", "02.01.2006"); err != nil || ts.Day() != 1 {
		t.Errorf("explicit layout: ts=%v err=%v", ts, err)
	}
}

const sampleXES = `<?xml version="1.0" encoding="UTF-8"?>
<log>
  <trace>
    <string key="concept:name" value="c1"/>
    <event>
      <string key="concept:name" value="Create Order"/>
      <string key="org:resource" value="alice"/>
      <date key="time:timestamp" value="2025-03-01T08:00:00Z"/>
      <int key="amount" value="250"/>
    </event>
    <event>
      <string key="concept:name" value="Ship"/>
      <date key="time:timestamp" value="2025-03-02T09:00:00Z"/>
    </event>
  </trace>
  <trace>
    <event>
      <string key="concept:name" value="Create Order"/>
      <date key="time:timestamp" value="2025-03-01T10:00:00Z"/>
    </event>
  </trace>
</log>
`

// TestLoadXES verifies standard extension mapping and attribute capture.
func TestLoadXES(t *testing.T) {
	log, err := LoadXES(strings.NewReader(sampleXES), "orders")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if log.CaseCount() != 2 {
		t.Fatalf("case count = %d, want 2", log.CaseCount())
	}

	tr := log.Trace("c1")
	if tr == nil || tr.Len() != 2 {
		t.Fatalf("c1 trace = %v", tr)
	}
	first := tr.Event(0)
	if first.Activity != "Create Order" || first.Resource != "alice" {
		t.Errorf("first event = %+v", first)
	}
	if !first.Timestamp.Equal(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v", first.Timestamp)
	}
	if got, ok := first.Attributes["amount"].(int64); !ok || got != 250 {
		t.Errorf("amount attribute = %v", first.Attributes["amount"])
	}

	// The unnamed trace gets a generated case id.
	if log.Trace("case_1") == nil {
		t.Error("expected generated case id for unnamed trace")
	}
}
