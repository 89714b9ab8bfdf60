// Package eventlog defines the in-memory event log model: cases (traces) of
// timestamped activity executions, as extracted from ERP activity tables.
// A log is mutable while it is being filled and sealed once analysis begins.
package eventlog

import (
	"sort"
	"sync"
	"time"

	"github.com/erpflow/erpflow/pkg/errors"
)

// Event is a single activity execution within a case.
// Timestamps carry millisecond resolution; ISO-8601 strings are parsed at
// the ingest boundary, never compared as strings.
type Event struct {
	Activity   string                 `json:"activity"`
	Timestamp  time.Time              `json:"timestamp"`
	Resource   string                 `json:"resource,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Trace is the ordered event sequence of one case.
type Trace struct {
	caseID string
	events []Event
}

// NewTrace creates an empty trace for a case.
func NewTrace(caseID string) *Trace {
	return &Trace{caseID: caseID}
}

// CaseID returns the case identifier.
func (t *Trace) CaseID() string { return t.caseID }

// Len returns the number of events in the trace.
func (t *Trace) Len() int { return len(t.events) }

// Event returns the event at index i.
func (t *Trace) Event(i int) Event { return t.events[i] }

// Events returns a copy of the event sequence. The trace itself is never
// handed out mutable.
func (t *Trace) Events() []Event {
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Activities returns the activity sequence of the trace.
func (t *Trace) Activities() []string {
	names := make([]string, len(t.events))
	for i, ev := range t.events {
		names[i] = ev.Activity
	}
	return names
}

// Append adds an event to the trace. Events must arrive in timestamp order;
// a regression is a programming fault on the caller's side.
func (t *Trace) Append(ev Event) error {
	if n := len(t.events); n > 0 && ev.Timestamp.Before(t.events[n-1].Timestamp) {
		return errors.LogIntegrity(t.caseID, ev.Activity)
	}
	t.events = append(t.events, ev)
	return nil
}

// Duration returns last timestamp minus first timestamp.
func (t *Trace) Duration() time.Duration {
	if len(t.events) < 2 {
		return 0
	}
	return t.events[len(t.events)-1].Timestamp.Sub(t.events[0].Timestamp)
}

// Log is a named collection of traces keyed by case ID.
// Once sealed (implicitly, when an analyzer reads it) the log rejects writes.
type Log struct {
	mu     sync.RWMutex
	name   string
	traces map[string]*Trace
	order  []string // case IDs in insertion order, for deterministic iteration
	sealed bool
}

// New creates an empty event log.
func New(name string) *Log {
	return &Log{
		name:   name,
		traces: make(map[string]*Trace),
	}
}

// Name returns the log name.
func (l *Log) Name() string { return l.name }

// AddEvent appends an event to the case's trace, creating the trace if the
// case is new.
func (l *Log) AddEvent(caseID string, ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sealed {
		return errors.New(errors.CodeLogSealed, "event log is sealed for analysis").
			WithContext("log", l.name)
	}

	tr, ok := l.traces[caseID]
	if !ok {
		tr = NewTrace(caseID)
		l.traces[caseID] = tr
		l.order = append(l.order, caseID)
	}
	return tr.Append(ev)
}

// AddTrace inserts a complete trace. Case IDs are unique within a log;
// inserting a duplicate is rejected.
func (l *Log) AddTrace(tr *Trace) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sealed {
		return errors.New(errors.CodeLogSealed, "event log is sealed for analysis").
			WithContext("log", l.name)
	}
	if _, ok := l.traces[tr.caseID]; ok {
		return errors.New(errors.CodeLogIntegrity, "duplicate case id").
			WithContext("case_id", tr.caseID)
	}
	for i := 1; i < len(tr.events); i++ {
		if tr.events[i].Timestamp.Before(tr.events[i-1].Timestamp) {
			return errors.LogIntegrity(tr.caseID, tr.events[i].Activity)
		}
	}
	l.traces[tr.caseID] = tr
	l.order = append(l.order, tr.caseID)
	return nil
}

// Seal marks the log read-only. Sealing an already sealed log is a no-op.
func (l *Log) Seal() {
	l.mu.Lock()
	l.sealed = true
	l.mu.Unlock()
}

// Sealed reports whether the log has been sealed.
func (l *Log) Sealed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sealed
}

// CaseCount returns the number of traces.
func (l *Log) CaseCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.traces)
}

// EventCount returns the total number of events across all traces.
func (l *Log) EventCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0
	for _, tr := range l.traces {
		total += len(tr.events)
	}
	return total
}

// Trace returns the trace for a case ID, or nil.
func (l *Log) Trace(caseID string) *Trace {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.traces[caseID]
}

// Each iterates traces in insertion order. Iteration seals the log.
// Returning false from fn stops early.
func (l *Log) Each(fn func(*Trace) bool) {
	l.Seal()
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, id := range l.order {
		if !fn(l.traces[id]) {
			return
		}
	}
}

// Traces returns all traces in insertion order. Reading seals the log.
func (l *Log) Traces() []*Trace {
	l.Seal()
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Trace, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.traces[id])
	}
	return out
}

// Activities returns the sorted set of distinct activity names.
func (l *Log) Activities() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	set := make(map[string]struct{})
	for _, tr := range l.traces {
		for _, ev := range tr.events {
			set[ev.Activity] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// Resources returns the sorted set of distinct resources. Events without a
// resource are not counted.
func (l *Log) Resources() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	set := make(map[string]struct{})
	for _, tr := range l.traces {
		for _, ev := range tr.events {
			if ev.Resource != "" {
				set[ev.Resource] = struct{}{}
			}
		}
	}
	return sortedKeys(set)
}

// TimeRange returns the earliest and latest timestamps in the log.
// Both are zero for an empty log.
func (l *Log) TimeRange() (start, end time.Time) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, tr := range l.traces {
		if len(tr.events) == 0 {
			continue
		}
		first := tr.events[0].Timestamp
		last := tr.events[len(tr.events)-1].Timestamp
		if start.IsZero() || first.Before(start) {
			start = first
		}
		if last.After(end) {
			end = last
		}
	}
	return start, end
}

// Summary describes a log for reporting.
type Summary struct {
	Name          string    `json:"name"`
	CaseCount     int       `json:"case_count"`
	EventCount    int       `json:"event_count"`
	ActivityCount int       `json:"activity_count"`
	ResourceCount int       `json:"resource_count"`
	Start         time.Time `json:"start,omitempty"`
	End           time.Time `json:"end,omitempty"`
}

// Summary returns a compact description of the log.
func (l *Log) Summary() Summary {
	start, end := l.TimeRange()
	return Summary{
		Name:          l.name,
		CaseCount:     l.CaseCount(),
		EventCount:    l.EventCount(),
		ActivityCount: len(l.Activities()),
		ResourceCount: len(l.Resources()),
		Start:         start,
		End:           end,
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
