package socialnet

import (
	"fmt"
	"testing"
	"time"

	"github.com/erpflow/erpflow/pkg/eventlog"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

type step struct {
	activity string
	resource string
}

func addCase(t *testing.T, log *eventlog.Log, caseID string, steps ...step) {
	t.Helper()
	for i, s := range steps {
		err := log.AddEvent(caseID, eventlog.Event{
			Activity:  s.activity,
			Resource:  s.resource,
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("add %s: %v", caseID, err)
		}
	}
}

// TestFourEyesViolations verifies the same resource doing both halves of a
// four-eyes pair in two cases yields exactly two violations.
func TestFourEyesViolations(t *testing.T) {
	rules := []SoDRule{{Name: "4-eyes", Activities: []string{"Approve PO", "Post Invoice"}}}
	log := eventlog.New("p2p")

	// Two cases where dave does both.
	for i := 1; i <= 2; i++ {
		addCase(t, log, fmt.Sprintf("bad%d", i),
			step{"Create PO", "alice"},
			step{"Approve PO", "dave"},
			step{"Post Invoice", "dave"},
		)
	}
	// A clean case with separated duties.
	addCase(t, log, "good1",
		step{"Create PO", "alice"},
		step{"Approve PO", "bob"},
		step{"Post Invoice", "carol"},
	)

	result, err := New(rules).Mine(log)
	if err != nil {
		t.Fatalf("mine: %v", err)
	}

	if result.SoD.TotalViolations != 2 {
		t.Fatalf("violations = %d, want 2", result.SoD.TotalViolations)
	}
	if result.SoD.ByRule["4-eyes"] != 2 {
		t.Errorf("by rule = %v", result.SoD.ByRule)
	}
	for _, v := range result.SoD.Violations {
		if v.Resource != "dave" {
			t.Errorf("violating resource = %q", v.Resource)
		}
		if len(v.Activities) != 2 {
			t.Errorf("violation activities = %v", v.Activities)
		}
	}
}

// TestSoDNeedsTwoActivities verifies one rule activity alone is not a breach.
func TestSoDNeedsTwoActivities(t *testing.T) {
	rules := []SoDRule{{Name: "4-eyes", Activities: []string{"Approve PO", "Post Invoice"}}}
	log := eventlog.New("p2p")
	addCase(t, log, "c1",
		step{"Approve PO", "dave"},
		step{"Post Invoice", "erin"},
	)

	result, err := New(rules).Mine(log)
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	if result.SoD.TotalViolations != 0 {
		t.Errorf("violations = %d, want 0", result.SoD.TotalViolations)
	}
}

// TestHandoverNetwork verifies handover counting and direction.
func TestHandoverNetwork(t *testing.T) {
	log := eventlog.New("o2c")
	for i := 1; i <= 3; i++ {
		addCase(t, log, fmt.Sprintf("c%d", i),
			step{"Create", "alice"},
			step{"Pick", "bob"},
			step{"Pack", "bob"},
			step{"Ship", "carol"},
		)
	}

	result, err := New(nil).Mine(log)
	if err != nil {
		t.Fatalf("mine: %v", err)
	}

	if result.ResourceCount != 3 {
		t.Errorf("resource count = %d", result.ResourceCount)
	}
	want := map[string]int{"alice->bob": 3, "bob->carol": 3}
	got := map[string]int{}
	for _, h := range result.Handovers {
		got[h.From+"->"+h.To] = h.Count
	}
	for k, n := range want {
		if got[k] != n {
			t.Errorf("handover %s = %d, want %d", k, got[k], n)
		}
	}
	// bob keeping the work (Pick -> Pack) is not a handover.
	if _, ok := got["bob->bob"]; ok {
		t.Error("self-handover counted")
	}
}

// TestCentrality verifies the middleman scores highest.
func TestCentrality(t *testing.T) {
	log := eventlog.New("o2c")
	addCase(t, log, "c1", step{"A", "alice"}, step{"B", "bob"}, step{"C", "carol"})

	result, err := New(nil).Mine(log)
	if err != nil {
		t.Fatalf("mine: %v", err)
	}

	if len(result.Centrality) != 3 {
		t.Fatalf("centrality = %+v", result.Centrality)
	}
	top := result.Centrality[0]
	if top.Resource != "bob" || top.Degree != 2 {
		t.Errorf("top = %+v", top)
	}
	if top.Score != 1.0 {
		t.Errorf("score = %v, want 1.0 (2 partners of 2 possible)", top.Score)
	}
}

// TestWorkloadBalance verifies the coefficient-of-variation verdict.
func TestWorkloadBalance(t *testing.T) {
	balanced := eventlog.New("balanced")
	for i := 1; i <= 4; i++ {
		addCase(t, balanced, fmt.Sprintf("c%d", i),
			step{"A", "alice"}, step{"B", "bob"})
	}
	result, err := New(nil).Mine(balanced)
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	if !result.Workload.IsBalanced || result.Workload.CoefficientOfVariation != 0 {
		t.Errorf("balanced workload = %+v", result.Workload)
	}

	skewed := eventlog.New("skewed")
	for i := 1; i <= 9; i++ {
		addCase(t, skewed, fmt.Sprintf("c%d", i), step{"A", "alice"})
	}
	addCase(t, skewed, "c10", step{"A", "bob"})
	result, err = New(nil).Mine(skewed)
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	// alice 9, bob 1: mean 5, stddev 4, cv 0.8.
	if result.Workload.IsBalanced {
		t.Errorf("skewed workload flagged balanced: cv=%v", result.Workload.CoefficientOfVariation)
	}
	if result.Workload.PerResource["alice"] != 9 {
		t.Errorf("per resource = %v", result.Workload.PerResource)
	}
}

// TestMissingResourcesAreSkipped verifies events without a resource break
// handover chains instead of fabricating one.
func TestMissingResourcesAreSkipped(t *testing.T) {
	log := eventlog.New("o2c")
	addCase(t, log, "c1",
		step{"A", "alice"},
		step{"B", ""},
		step{"C", "bob"},
	)

	result, err := New(nil).Mine(log)
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	if len(result.Handovers) != 0 {
		t.Errorf("handovers across a resource gap: %+v", result.Handovers)
	}
	if result.ResourceCount != 2 {
		t.Errorf("resource count = %d", result.ResourceCount)
	}
}
