package intelligence

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/erpflow/erpflow/pkg/analysis/performance"
	"github.com/erpflow/erpflow/pkg/analysis/socialnet"
	"github.com/erpflow/erpflow/pkg/eventlog"
	"github.com/erpflow/erpflow/pkg/refmodel"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

type step struct {
	activity string
	resource string
	offset   time.Duration
}

func addCase(t *testing.T, log *eventlog.Log, caseID string, steps ...step) {
	t.Helper()
	for _, s := range steps {
		err := log.AddEvent(caseID, eventlog.Event{
			Activity:  s.activity,
			Resource:  s.resource,
			Timestamp: t0.Add(s.offset),
		})
		if err != nil {
			t.Fatalf("add %s: %v", caseID, err)
		}
	}
}

func hourly(activities ...string) []step {
	steps := make([]step, len(activities))
	for i, act := range activities {
		steps[i] = step{activity: act, offset: time.Duration(i) * time.Hour}
	}
	return steps
}

func o2cModel() *refmodel.Model {
	return &refmodel.Model{
		ID:         "o2c_test",
		Name:       "Order to Cash (test)",
		Activities: []string{"Create Order", "Check Credit", "Pick", "Ship", "Invoice"},
		Edges: []refmodel.Edge{
			{Source: "Create Order", Target: "Check Credit"},
			{Source: "Check Credit", Target: "Pick"},
			{Source: "Pick", Target: "Ship"},
			{Source: "Ship", Target: "Invoice"},
		},
		StartActivities: []string{"Create Order"},
		EndActivities:   []string{"Invoice"},
	}
}

// TestFullPipelineCleanLog runs three identical order-to-cash cases through
// every phase against a matching model.
func TestFullPipelineCleanLog(t *testing.T) {
	log := eventlog.New("o2c")
	for i := 1; i <= 3; i++ {
		addCase(t, log, fmt.Sprintf("c%d", i),
			hourly("Create Order", "Check Credit", "Pick", "Ship", "Invoice")...)
	}

	engine := NewEngine(EngineConfig{})
	report, err := engine.Analyze(context.Background(), log, Options{ReferenceModel: o2cModel()})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if len(report.Errors) != 0 {
		t.Fatalf("phase errors: %+v", report.Errors)
	}
	completed := report.CompletedPhases()
	if len(completed) != len(PhaseOrder) {
		t.Errorf("completed = %v, want all of %v", completed, PhaseOrder)
	}

	if report.Variants.TotalVariantCount != 1 {
		t.Errorf("variant count = %d, want 1", report.Variants.TotalVariantCount)
	}
	if report.Variants.HappyPath == nil || report.Variants.HappyPath.Frequency != 3 {
		t.Errorf("happy path = %+v", report.Variants.HappyPath)
	}
	if report.Conformance.Fitness != 1.0 {
		t.Errorf("fitness = %v, want 1.0", report.Conformance.Fitness)
	}
	if report.RunID == "" {
		t.Error("missing run id")
	}
	if report.ExecutiveSummary == "" {
		t.Error("missing executive summary")
	}
	if !log.Sealed() {
		t.Error("log must be sealed by the run")
	}
}

// TestMalformedModelIsolatedToConformance verifies a broken reference model
// fails only the conformance phase; the other five still complete.
func TestMalformedModelIsolatedToConformance(t *testing.T) {
	log := eventlog.New("o2c")
	addCase(t, log, "c1", hourly("Create Order", "Ship")...)

	broken := &refmodel.Model{ID: "broken", Activities: nil, Edges: nil}
	report, err := NewEngine(EngineConfig{}).Analyze(context.Background(), log, Options{ReferenceModel: broken})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if len(report.Errors) != 1 || report.Errors[0].Phase != PhaseConformance {
		t.Fatalf("errors = %+v, want single conformance failure", report.Errors)
	}
	if report.Conformance != nil {
		t.Error("failed phase must not leave a result")
	}

	completed := report.CompletedPhases()
	if len(completed) != 5 {
		t.Errorf("completed = %v, want the other five phases", completed)
	}

	// Completed plus errored phases partition the schedule.
	seen := map[string]bool{}
	for _, p := range completed {
		seen[p] = true
	}
	for _, e := range report.Errors {
		seen[e.Phase] = true
	}
	for _, p := range PhaseOrder {
		if !seen[p] {
			t.Errorf("phase %s neither completed nor errored", p)
		}
	}
}

// TestConformanceSkippedWithoutModel verifies no model means a clean skip,
// not an error.
func TestConformanceSkippedWithoutModel(t *testing.T) {
	log := eventlog.New("o2c")
	addCase(t, log, "c1", hourly("A", "B")...)

	report, err := NewEngine(EngineConfig{}).Analyze(context.Background(), log, Options{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(report.Errors) != 0 {
		t.Errorf("errors = %+v", report.Errors)
	}
	if report.Conformance != nil {
		t.Error("conformance should be skipped without a model")
	}
	if len(report.CompletedPhases()) != 5 {
		t.Errorf("completed = %v", report.CompletedPhases())
	}
}

// TestUnknownProcessIDFailsConformancePhase verifies a dangling process id is
// a phase error rather than a silent skip.
func TestUnknownProcessIDFailsConformancePhase(t *testing.T) {
	log := eventlog.New("o2c")
	addCase(t, log, "c1", hourly("A", "B")...)

	report, err := NewEngine(EngineConfig{}).Analyze(context.Background(), log, Options{ProcessID: "no_such_process"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var found bool
	for _, e := range report.Errors {
		if e.Phase == PhaseConformance && strings.Contains(e.Message, "no_such_process") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected conformance phase error naming the process, got %+v", report.Errors)
	}
}

// TestCancellationBetweenPhases verifies a cancelled context stops the
// schedule with a single cancelled marker and keeps completed results.
func TestCancellationBetweenPhases(t *testing.T) {
	log := eventlog.New("o2c")
	for i := 1; i <= 5; i++ {
		addCase(t, log, fmt.Sprintf("c%d", i), hourly("A", "B", "C")...)
	}

	ctx, cancel := context.WithCancel(context.Background())
	opts := Options{
		OnProgress: func(phase string, result interface{}) {
			if phase == PhaseDiscovery {
				cancel()
			}
		},
	}

	report, err := NewEngine(EngineConfig{}).Analyze(ctx, log, opts)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if len(report.Errors) != 1 {
		t.Fatalf("errors = %+v, want exactly one cancelled entry", report.Errors)
	}
	if report.Errors[0].Phase != "cancelled" {
		t.Errorf("error phase = %q", report.Errors[0].Phase)
	}
	if report.Variants == nil || report.Discovery == nil {
		t.Error("phases completed before cancellation must keep their results")
	}
	if report.Performance != nil || report.KPIs != nil {
		t.Error("phases after cancellation must not run")
	}
}

// TestSkipPhases verifies deliberate skips produce neither result nor error.
func TestSkipPhases(t *testing.T) {
	log := eventlog.New("o2c")
	addCase(t, log, "c1", hourly("A", "B")...)

	report, err := NewEngine(EngineConfig{}).Analyze(context.Background(), log, Options{
		Skip: []string{PhaseKPIs, PhaseSocial},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if report.KPIs != nil || report.Social != nil {
		t.Error("skipped phases produced results")
	}
	if len(report.Errors) != 0 {
		t.Errorf("skipped phases produced errors: %+v", report.Errors)
	}
}

// TestSoDRulesReachSocialPhase verifies rule plumbing end to end: the
// four-eyes breach in two cases surfaces as two violations and a high
// severity recommendation.
func TestSoDRulesReachSocialPhase(t *testing.T) {
	log := eventlog.New("p2p")
	for i := 1; i <= 2; i++ {
		addCase(t, log, fmt.Sprintf("c%d", i),
			step{"Approve PO", "dave", 0},
			step{"Post Invoice", "dave", time.Hour},
		)
	}

	report, err := NewEngine(EngineConfig{}).Analyze(context.Background(), log, Options{
		SoDRules: []socialnet.SoDRule{{Name: "4-eyes", Activities: []string{"Approve PO", "Post Invoice"}}},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if report.Social.SoD.TotalViolations != 2 {
		t.Errorf("violations = %d, want 2", report.Social.SoD.TotalViolations)
	}

	var compliance bool
	for _, rec := range report.CriticalFindings() {
		if rec.Category == CategoryCompliance {
			compliance = true
		}
	}
	if !compliance {
		t.Error("expected a high severity compliance recommendation")
	}
}

// TestBottleneckRecommendation verifies the dominant transition wait shows up
// as a medium efficiency recommendation.
func TestBottleneckRecommendation(t *testing.T) {
	log := eventlog.New("o2c")
	for i := 1; i <= 20; i++ {
		addCase(t, log, fmt.Sprintf("c%d", i),
			step{"Create Order", "", 0},
			step{"Credit Check", "", 1 * time.Hour},
			step{"Approve Credit", "", 49 * time.Hour},
			step{"Ship", "", 50 * time.Hour},
		)
	}

	report, err := NewEngine(EngineConfig{}).Analyze(context.Background(), log, Options{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	top := report.Performance.Bottlenecks[0]
	if top.From != "Credit Check" || top.MedianDuration != 48*time.Hour {
		t.Errorf("top bottleneck = %+v", top)
	}

	var efficiency *Recommendation
	for i := range report.Recommendations {
		if report.Recommendations[i].Category == CategoryEfficiency {
			efficiency = &report.Recommendations[i]
		}
	}
	if efficiency == nil {
		t.Fatal("expected an efficiency recommendation")
	}
	if efficiency.Severity != SeverityMedium {
		t.Errorf("severity = %q, want medium", efficiency.Severity)
	}
	if !strings.Contains(efficiency.Title, "Credit Check") {
		t.Errorf("title = %q", efficiency.Title)
	}
}

// TestSLABreachRecommendation verifies only breached SLA verdicts escalate;
// at-risk and met targets stay out of the recommendation list.
func TestSLABreachRecommendation(t *testing.T) {
	report := &Report{
		Performance: &performance.Result{
			SLACompliance: []performance.SLAResult{
				{Target: "Credit Check -> Approve Credit", Bound: 24 * time.Hour, Observed: 30 * time.Hour, Status: performance.SLABreached},
				{Target: "Pick -> Ship", Bound: 24 * time.Hour, Observed: 20 * time.Hour, Status: performance.SLAAtRisk},
				{Target: "Ship -> Invoice", Bound: 24 * time.Hour, Observed: 2 * time.Hour, Status: performance.SLAMet},
			},
		},
	}

	recs := buildRecommendations(report)
	var sla []Recommendation
	for _, rec := range recs {
		if rec.Category == CategorySLA {
			sla = append(sla, rec)
		}
	}
	if len(sla) != 1 {
		t.Fatalf("sla recommendations = %+v", sla)
	}
	if sla[0].Severity != SeverityHigh {
		t.Errorf("severity = %q, want high", sla[0].Severity)
	}
	if !strings.Contains(sla[0].Title, "Credit Check -> Approve Credit") {
		t.Errorf("title = %q", sla[0].Title)
	}
}

// TestNilLogIsCallerError verifies the single caller-facing error path.
func TestNilLogIsCallerError(t *testing.T) {
	_, err := NewEngine(EngineConfig{}).Analyze(context.Background(), nil, Options{})
	if err == nil {
		t.Fatal("expected error for nil log")
	}
}

// TestReportWireFormat verifies the serialized report shape.
func TestReportWireFormat(t *testing.T) {
	log := eventlog.New("o2c")
	addCase(t, log, "c1", hourly("A", "B")...)

	report, err := NewEngine(EngineConfig{}).Analyze(context.Background(), log, Options{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	data, err := report.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"summary"`, `"phases"`, `"variants"`, `"errors"`, `"timestamp"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("wire report missing %s", key)
		}
	}
	if strings.Contains(string(data), `"conformance":`) {
		t.Error("skipped conformance phase must be absent from the wire report")
	}
}
