// Package intelligence orchestrates the process analysis pipeline: six
// analyzer phases with per-phase failure isolation, recommendation
// generation, and an executive summary.
package intelligence

import (
	"encoding/json"
	"time"

	"github.com/erpflow/erpflow/pkg/analysis/conformance"
	"github.com/erpflow/erpflow/pkg/analysis/discovery"
	"github.com/erpflow/erpflow/pkg/analysis/kpi"
	"github.com/erpflow/erpflow/pkg/analysis/performance"
	"github.com/erpflow/erpflow/pkg/analysis/socialnet"
	"github.com/erpflow/erpflow/pkg/analysis/variants"
	"github.com/erpflow/erpflow/pkg/eventlog"
)

// Phase names, in execution order.
const (
	PhaseVariants    = "variants"
	PhaseDiscovery   = "discovery"
	PhaseConformance = "conformance"
	PhasePerformance = "performance"
	PhaseSocial      = "social"
	PhaseKPIs        = "kpis"
)

// PhaseOrder is the fixed execution order of the pipeline.
var PhaseOrder = []string{
	PhaseVariants,
	PhaseDiscovery,
	PhaseConformance,
	PhasePerformance,
	PhaseSocial,
	PhaseKPIs,
}

// PhaseError records a failed phase. The phase's result is absent from the
// report; subsequent phases still ran.
type PhaseError struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
}

// Report aggregates every completed phase of one analysis run.
type Report struct {
	RunID              string           `json:"run_id"`
	ProcessID          string           `json:"process_id,omitempty"`
	ReferenceModelName string           `json:"reference_model_name,omitempty"`
	EventLogSummary    eventlog.Summary `json:"event_log_summary"`

	Variants    *variants.Result    `json:"-"`
	Discovery   *discovery.Model    `json:"-"`
	Conformance *conformance.Result `json:"-"`
	Performance *performance.Result `json:"-"`
	Social      *socialnet.Result   `json:"-"`
	KPIs        *kpi.Report         `json:"-"`

	Recommendations  []Recommendation `json:"recommendations"`
	ExecutiveSummary string           `json:"executive_summary"`
	Errors           []PhaseError     `json:"errors"`
	Duration         time.Duration    `json:"duration"`
	Timestamp        time.Time        `json:"timestamp"`
}

// Phase returns the result of a completed phase by name, or nil.
func (r *Report) Phase(name string) interface{} {
	switch name {
	case PhaseVariants:
		if r.Variants != nil {
			return r.Variants
		}
	case PhaseDiscovery:
		if r.Discovery != nil {
			return r.Discovery
		}
	case PhaseConformance:
		if r.Conformance != nil {
			return r.Conformance
		}
	case PhasePerformance:
		if r.Performance != nil {
			return r.Performance
		}
	case PhaseSocial:
		if r.Social != nil {
			return r.Social
		}
	case PhaseKPIs:
		if r.KPIs != nil {
			return r.KPIs
		}
	}
	return nil
}

// CompletedPhases lists phases with a result, in execution order.
func (r *Report) CompletedPhases() []string {
	var out []string
	for _, name := range PhaseOrder {
		if r.Phase(name) != nil {
			out = append(out, name)
		}
	}
	return out
}

// CriticalFindings returns the high-severity recommendations only.
func (r *Report) CriticalFindings() []Recommendation {
	var out []Recommendation
	for _, rec := range r.Recommendations {
		if rec.Severity == SeverityHigh {
			out = append(out, rec)
		}
	}
	return out
}

// DashboardSummary is the compact view surfaced in CLIs and dashboards.
type DashboardSummary struct {
	RunID              string           `json:"run_id"`
	ProcessID          string           `json:"process_id,omitempty"`
	ReferenceModelName string           `json:"reference_model_name,omitempty"`
	EventLog           eventlog.Summary `json:"event_log"`
	CompletedPhases    []string         `json:"completed_phases"`
	FailedPhases       []string         `json:"failed_phases,omitempty"`
	VariantCount       int              `json:"variant_count"`
	ReworkRate         float64          `json:"rework_rate"`
	Fitness            *float64         `json:"fitness,omitempty"`
	BottleneckCount    int              `json:"bottleneck_count"`
	SoDViolations      int              `json:"sod_violations"`
	HighSeverityCount  int              `json:"high_severity_count"`
	Duration           time.Duration    `json:"duration"`
}

// Summary builds the dashboard view of the report.
func (r *Report) Summary() DashboardSummary {
	s := DashboardSummary{
		RunID:              r.RunID,
		ProcessID:          r.ProcessID,
		ReferenceModelName: r.ReferenceModelName,
		EventLog:           r.EventLogSummary,
		CompletedPhases:    r.CompletedPhases(),
		HighSeverityCount:  len(r.CriticalFindings()),
		Duration:           r.Duration,
	}
	for _, e := range r.Errors {
		s.FailedPhases = append(s.FailedPhases, e.Phase)
	}
	if r.Variants != nil {
		s.VariantCount = r.Variants.TotalVariantCount
		s.ReworkRate = r.Variants.Rework.ReworkRate
	}
	if r.Conformance != nil {
		f := r.Conformance.Fitness
		s.Fitness = &f
	}
	if r.Performance != nil {
		s.BottleneckCount = len(r.Performance.Bottlenecks)
	}
	if r.Social != nil {
		s.SoDViolations = r.Social.SoD.TotalViolations
	}
	return s
}

// wireReport is the serialized form: phases keyed by name, duration in
// milliseconds, ISO-8601 UTC timestamp.
type wireReport struct {
	Summary          DashboardSummary       `json:"summary"`
	ExecutiveSummary string                 `json:"executive_summary"`
	Recommendations  []Recommendation       `json:"recommendations"`
	Phases           map[string]interface{} `json:"phases"`
	Errors           []PhaseError           `json:"errors"`
	DurationMillis   int64                  `json:"duration"`
	Timestamp        string                 `json:"timestamp"`
}

// MarshalJSON serializes the report in its wire form.
func (r *Report) MarshalJSON() ([]byte, error) {
	phases := make(map[string]interface{})
	for _, name := range r.CompletedPhases() {
		phases[name] = r.Phase(name)
	}
	recs := r.Recommendations
	if recs == nil {
		recs = []Recommendation{}
	}
	errs := r.Errors
	if errs == nil {
		errs = []PhaseError{}
	}
	return json.Marshal(wireReport{
		Summary:          r.Summary(),
		ExecutiveSummary: r.ExecutiveSummary,
		Recommendations:  recs,
		Phases:           phases,
		Errors:           errs,
		DurationMillis:   r.Duration.Milliseconds(),
		Timestamp:        r.Timestamp.UTC().Format(time.RFC3339),
	})
}
