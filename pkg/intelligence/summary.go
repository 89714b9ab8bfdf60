package intelligence

import (
	"fmt"
	"strings"
)

// buildExecutiveSummary renders the one-page narrative. Sections for phases
// that failed or were skipped are omitted; the summary adapts rather than
// reporting holes.
func buildExecutiveSummary(r *Report) string {
	var sb strings.Builder

	sb.WriteString("PROCESS INTELLIGENCE SUMMARY\n\n")
	sb.WriteString(fmt.Sprintf("Scope: event log %q with %d cases, %d events, %d activities",
		r.EventLogSummary.Name, r.EventLogSummary.CaseCount,
		r.EventLogSummary.EventCount, r.EventLogSummary.ActivityCount))
	if !r.EventLogSummary.Start.IsZero() {
		sb.WriteString(fmt.Sprintf(", spanning %s to %s",
			r.EventLogSummary.Start.Format("2006-01-02"),
			r.EventLogSummary.End.Format("2006-01-02")))
	}
	sb.WriteString(".\n")
	if r.ReferenceModelName != "" {
		sb.WriteString(fmt.Sprintf("Reference model: %s.\n", r.ReferenceModelName))
	}
	sb.WriteString("\n")

	if v := r.Variants; v != nil {
		sb.WriteString(fmt.Sprintf("Variants: %d distinct execution paths.", v.TotalVariantCount))
		if v.HappyPath != nil {
			sb.WriteString(fmt.Sprintf(" The happy path covers %d of %d cases (%s).",
				v.HappyPath.Frequency, v.TotalCaseCount,
				strings.Join(v.HappyPath.Sequence, " -> ")))
		}
		sb.WriteString(fmt.Sprintf(" Rework affects %.1f%% of cases.\n", v.Rework.ReworkRate*100))
	}

	if d := r.Discovery; d != nil {
		sb.WriteString(fmt.Sprintf("Discovery: mined model with %d activities and %d dependency edges",
			len(d.Activities), len(d.Edges)))
		if len(d.L1Loops)+len(d.L2Loops) > 0 {
			sb.WriteString(fmt.Sprintf("; %d self-loops and %d two-step loops detected",
				len(d.L1Loops), len(d.L2Loops)))
		}
		sb.WriteString(".\n")
	}

	if c := r.Conformance; c != nil {
		sb.WriteString(fmt.Sprintf("Conformance: fitness %.2f, precision %.2f; %.1f%% of cases fully conformant (%d deviations).\n",
			c.Fitness, c.Precision, c.ConformanceRate, c.DeviationStats.Total))
	}

	if p := r.Performance; p != nil {
		sb.WriteString(fmt.Sprintf("Performance: median cycle time %s (p90 %s).",
			p.CaseDurations.Median, p.CaseDurations.P90))
		if len(p.Bottlenecks) > 0 {
			top := p.Bottlenecks[0]
			sb.WriteString(fmt.Sprintf(" Top bottleneck: %s -> %s at median %s.",
				top.From, top.To, top.MedianDuration))
		}
		breached := 0
		for _, sla := range p.SLACompliance {
			if sla.Status == "breached" {
				breached++
			}
		}
		if breached > 0 {
			sb.WriteString(fmt.Sprintf(" %d SLA target(s) breached.", breached))
		}
		sb.WriteString("\n")
	}

	if s := r.Social; s != nil {
		sb.WriteString(fmt.Sprintf("Organization: %d resources, workload CV %.2f",
			s.ResourceCount, s.Workload.CoefficientOfVariation))
		if s.SoD.TotalViolations > 0 {
			sb.WriteString(fmt.Sprintf("; %d segregation-of-duty violations", s.SoD.TotalViolations))
		}
		sb.WriteString(".\n")
	}

	if k := r.KPIs; k != nil {
		sb.WriteString(fmt.Sprintf("KPIs: %d indicators computed across time, quality, and volume groups.\n",
			len(k.All())))
	}

	if len(r.Errors) > 0 {
		names := make([]string, len(r.Errors))
		for i, e := range r.Errors {
			names[i] = e.Phase
		}
		sb.WriteString(fmt.Sprintf("\nIncomplete phases: %s.\n", strings.Join(names, ", ")))
	}

	if n := len(r.CriticalFindings()); n > 0 {
		sb.WriteString(fmt.Sprintf("\n%d high-severity finding(s) require attention before migration.\n", n))
	} else if len(r.Recommendations) == 0 {
		sb.WriteString("\nNo findings above the reporting threshold; the process looks migration-ready.\n")
	}

	return sb.String()
}
