package performance

import (
	"fmt"
	"testing"
	"time"

	"github.com/erpflow/erpflow/pkg/eventlog"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

// timedCase appends a case whose event offsets are given explicitly.
func timedCase(t *testing.T, log *eventlog.Log, caseID string, steps []string, offsets []time.Duration) {
	t.Helper()
	for i, act := range steps {
		err := log.AddEvent(caseID, eventlog.Event{Activity: act, Timestamp: t0.Add(offsets[i])})
		if err != nil {
			t.Fatalf("add %s: %v", caseID, err)
		}
	}
}

// TestCreditCheckBottleneck verifies a consistently slow transition tops the
// bottleneck ranking with its median wait.
func TestCreditCheckBottleneck(t *testing.T) {
	log := eventlog.New("o2c")
	steps := []string{"Create Order", "Credit Check", "Approve Credit", "Ship"}
	for i := 1; i <= 20; i++ {
		timedCase(t, log, fmt.Sprintf("c%d", i), steps, []time.Duration{
			0,
			1 * time.Hour,
			49 * time.Hour, // 48h sat in credit approval
			50 * time.Hour,
		})
	}

	result, err := New(nil).Analyze(log)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if result.CaseCount != 20 {
		t.Errorf("case count = %d", result.CaseCount)
	}
	if len(result.Bottlenecks) == 0 {
		t.Fatal("expected at least one bottleneck")
	}
	top := result.Bottlenecks[0]
	if top.From != "Credit Check" || top.To != "Approve Credit" {
		t.Errorf("top bottleneck = %s -> %s", top.From, top.To)
	}
	if top.MedianDuration != 48*time.Hour {
		t.Errorf("median = %v, want 48h", top.MedianDuration)
	}
	if top.Frequency != 20 {
		t.Errorf("frequency = %d", top.Frequency)
	}
	// 48 hours x 20 occurrences.
	if top.Impact != 48*20 {
		t.Errorf("impact = %v, want 960", top.Impact)
	}
}

// TestBottleneckShareThreshold verifies rare transitions never qualify.
func TestBottleneckShareThreshold(t *testing.T) {
	log := eventlog.New("o2c")
	for i := 1; i <= 30; i++ {
		timedCase(t, log, fmt.Sprintf("c%d", i),
			[]string{"A", "B"}, []time.Duration{0, time.Hour})
	}
	// One extreme outlier in 31 cases: share ≈ 0.03 < 0.05.
	timedCase(t, log, "outlier",
		[]string{"A", "X", "B"}, []time.Duration{0, 100 * time.Hour, 101 * time.Hour})

	result, err := New(nil).Analyze(log)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for _, b := range result.Bottlenecks {
		if b.From == "A" && b.To == "X" {
			t.Errorf("rare transition reported as bottleneck: %+v", b)
		}
	}
}

// TestCaseDurationPercentiles verifies the cycle-time distribution.
func TestCaseDurationPercentiles(t *testing.T) {
	log := eventlog.New("o2c")
	// Durations 1h..10h.
	for i := 1; i <= 10; i++ {
		timedCase(t, log, fmt.Sprintf("c%d", i),
			[]string{"A", "B"}, []time.Duration{0, time.Duration(i) * time.Hour})
	}

	result, err := New(nil).Analyze(log)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.CaseDurations.Median != 5*time.Hour {
		t.Errorf("median = %v, want 5h", result.CaseDurations.Median)
	}
	if result.CaseDurations.P90 != 9*time.Hour {
		t.Errorf("p90 = %v, want 9h", result.CaseDurations.P90)
	}
	if result.CaseDurations.P99 != 10*time.Hour {
		t.Errorf("p99 = %v, want 10h", result.CaseDurations.P99)
	}
}

// TestSLACompliance verifies edge and activity SLA targets.
func TestSLACompliance(t *testing.T) {
	log := eventlog.New("o2c")
	for i := 1; i <= 10; i++ {
		timedCase(t, log, fmt.Sprintf("c%d", i),
			[]string{"Create", "Approve", "Ship"},
			[]time.Duration{0, 10 * time.Hour, 12 * time.Hour})
	}

	targets := map[string]time.Duration{
		"Create -> Approve": 8 * time.Hour,  // observed p90 10h: breached
		"Approve":           24 * time.Hour, // observed p90 2h: met
	}
	result, err := New(targets).Analyze(log)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if len(result.SLACompliance) != 2 {
		t.Fatalf("sla results = %+v", result.SLACompliance)
	}
	byTarget := map[string]SLAResult{}
	for _, r := range result.SLACompliance {
		byTarget[r.Target] = r
	}
	if got := byTarget["Create -> Approve"]; got.Status != SLABreached || got.Observed != 10*time.Hour {
		t.Errorf("edge SLA = %+v", got)
	}
	if got := byTarget["Approve"]; got.Status != SLAMet {
		t.Errorf("activity SLA = %+v", got)
	}
}

// TestSLAAtRisk verifies the 80 percent warning band.
func TestSLAAtRisk(t *testing.T) {
	log := eventlog.New("o2c")
	for i := 1; i <= 10; i++ {
		timedCase(t, log, fmt.Sprintf("c%d", i),
			[]string{"A", "B"}, []time.Duration{0, 9 * time.Hour})
	}

	result, err := New(map[string]time.Duration{"A -> B": 10 * time.Hour}).Analyze(log)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(result.SLACompliance) != 1 || result.SLACompliance[0].Status != SLAAtRisk {
		t.Errorf("sla = %+v", result.SLACompliance)
	}
}

// TestEmptyLogPerformance verifies graceful handling of no cases.
func TestEmptyLogPerformance(t *testing.T) {
	result, err := New(nil).Analyze(eventlog.New("empty"))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.CaseCount != 0 || len(result.Bottlenecks) != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
}
