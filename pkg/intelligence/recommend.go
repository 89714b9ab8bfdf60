package intelligence

import (
	"fmt"
	"sort"

	"github.com/erpflow/erpflow/pkg/analysis/performance"
)

// Recommendation severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Recommendation categories.
const (
	CategoryStandardization = "standardization"
	CategoryQuality         = "quality"
	CategoryCompliance      = "compliance"
	CategoryEfficiency      = "efficiency"
	CategorySLA             = "sla"
	CategoryResource        = "resource"
)

// Recommendation is one actionable finding derived from phase results.
type Recommendation struct {
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Evidence    string `json:"evidence"`
}

var severityRank = map[string]int{
	SeverityHigh:   0,
	SeverityMedium: 1,
	SeverityLow:    2,
}

// buildRecommendations derives recommendations deterministically from the
// completed phase results. The rules mirror the assessment playbook:
// thresholds are fixed, ordering is severity-major and stable.
func buildRecommendations(r *Report) []Recommendation {
	var recs []Recommendation

	if r.Variants != nil {
		v := r.Variants
		switch {
		case v.TotalVariantCount > 50:
			recs = append(recs, Recommendation{
				Category: CategoryStandardization, Severity: SeverityHigh,
				Title:       "Standardize process execution",
				Description: "The process runs in a very high number of distinct ways. Define and enforce a standard path before migration.",
				Evidence:    fmt.Sprintf("%d variants across %d cases", v.TotalVariantCount, v.TotalCaseCount),
			})
		case v.TotalVariantCount > 20:
			recs = append(recs, Recommendation{
				Category: CategoryStandardization, Severity: SeverityMedium,
				Title:       "Reduce process variation",
				Description: "Variant count is elevated. Consolidate the long tail of rare execution paths.",
				Evidence:    fmt.Sprintf("%d variants across %d cases", v.TotalVariantCount, v.TotalCaseCount),
			})
		}

		rework := v.Rework.ReworkRate
		switch {
		case rework > 0.3:
			recs = append(recs, Recommendation{
				Category: CategoryQuality, Severity: SeverityHigh,
				Title:       "Eliminate systematic rework",
				Description: "A large share of cases repeat activities. Root-cause the rework loops before migrating the process.",
				Evidence:    fmt.Sprintf("rework rate %.1f%% (%d cases)", rework*100, v.Rework.CasesAffected),
			})
		case rework > 0.15:
			recs = append(recs, Recommendation{
				Category: CategoryQuality, Severity: SeverityMedium,
				Title:       "Investigate rework hotspots",
				Description: "Rework is above the acceptable band. Review the top repeated activities.",
				Evidence:    fmt.Sprintf("rework rate %.1f%% (%d cases)", rework*100, v.Rework.CasesAffected),
			})
		}
	}

	if r.Conformance != nil {
		c := r.Conformance
		if c.Fitness < 0.8 {
			recs = append(recs, Recommendation{
				Category: CategoryCompliance, Severity: SeverityHigh,
				Title:       "Observed behaviour deviates from the reference model",
				Description: "Fitness is below the migration readiness bar. Align execution with the reference model or update the model.",
				Evidence:    fmt.Sprintf("fitness %.2f against %s", c.Fitness, c.ReferenceModelID),
			})
		}
		if c.ConformanceRate < 50 {
			recs = append(recs, Recommendation{
				Category: CategoryCompliance, Severity: SeverityHigh,
				Title:       "Majority of cases are non-conformant",
				Description: "Fewer than half of the cases follow the reference model end to end.",
				Evidence:    fmt.Sprintf("conformance rate %.1f%%", c.ConformanceRate),
			})
		}
	}

	if r.Performance != nil {
		p := r.Performance
		if len(p.Bottlenecks) > 0 {
			top := p.Bottlenecks[0]
			recs = append(recs, Recommendation{
				Category: CategoryEfficiency, Severity: SeverityMedium,
				Title:       fmt.Sprintf("Address bottleneck %s -> %s", top.From, top.To),
				Description: "The transition dominates waiting time. Review capacity and handover procedures on this step.",
				Evidence:    fmt.Sprintf("median wait %s over %d occurrences", top.MedianDuration, top.Frequency),
			})
		}
		for _, sla := range p.SLACompliance {
			if sla.Status == performance.SLABreached {
				recs = append(recs, Recommendation{
					Category: CategorySLA, Severity: SeverityHigh,
					Title:       fmt.Sprintf("SLA breached: %s", sla.Target),
					Description: "Observed p90 exceeds the agreed bound. Escalate before committing migration timelines.",
					Evidence:    fmt.Sprintf("p90 %s against bound %s", sla.Observed, sla.Bound),
				})
			}
		}
	}

	if r.Social != nil {
		s := r.Social
		if s.SoD.TotalViolations > 0 {
			recs = append(recs, Recommendation{
				Category: CategoryCompliance, Severity: SeverityHigh,
				Title:       "Segregation-of-duty violations detected",
				Description: "Single resources performed conflicting activities within the same case. Review role assignments before go-live.",
				Evidence:    fmt.Sprintf("%d violations across rules", s.SoD.TotalViolations),
			})
		}
		if s.ResourceCount > 1 && !s.Workload.IsBalanced {
			recs = append(recs, Recommendation{
				Category: CategoryResource, Severity: SeverityMedium,
				Title:       "Workload is unevenly distributed",
				Description: "Event volume is concentrated on few resources. Rebalance assignments to reduce key-person risk.",
				Evidence:    fmt.Sprintf("workload CV %.2f across %d resources", s.Workload.CoefficientOfVariation, s.ResourceCount),
			})
		}
	}

	// Severity-major ordering, stable for equal severity.
	sort.SliceStable(recs, func(i, j int) bool {
		return severityRank[recs[i].Severity] < severityRank[recs[j].Severity]
	})
	return recs
}
