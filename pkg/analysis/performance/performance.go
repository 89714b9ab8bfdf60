// Package performance computes cycle-time statistics, transition bottlenecks,
// and SLA compliance for an event log.
package performance

import (
	"sort"
	"time"

	"github.com/erpflow/erpflow/pkg/eventlog"
)

// Bottleneck thresholds: a transition qualifies when its median wait is at
// least bottleneckFactor times the global median and it occurs in at least
// bottleneckMinShare of cases.
const (
	bottleneckFactor   = 2.0
	bottleneckMinShare = 0.05
)

// SLA compliance statuses.
const (
	SLAMet      = "met"
	SLAAtRisk   = "at_risk"
	SLABreached = "breached"
)

// CaseDurations summarises end-to-end cycle times.
type CaseDurations struct {
	Median time.Duration `json:"median"`
	P90    time.Duration `json:"p90"`
	P99    time.Duration `json:"p99"`
}

// Bottleneck is a slow transition ranked by impact.
type Bottleneck struct {
	From           string        `json:"from"`
	To             string        `json:"to"`
	MedianDuration time.Duration `json:"median_duration"`
	Frequency      int           `json:"frequency"`
	Impact         float64       `json:"impact"` // median wait (hours) x frequency
}

// SLAResult is the compliance verdict for one SLA target.
type SLAResult struct {
	Target   string        `json:"target"` // edge ("A -> B") or activity name
	Bound    time.Duration `json:"bound"`
	Observed time.Duration `json:"observed_p90"`
	Status   string        `json:"status"`
}

// Result is the performance analysis output.
type Result struct {
	CaseCount     int           `json:"case_count"`
	CaseDurations CaseDurations `json:"case_durations"`
	Bottlenecks   []Bottleneck  `json:"bottlenecks"`
	SLACompliance []SLAResult   `json:"sla_compliance,omitempty"`
}

// Analyzer computes performance statistics.
type Analyzer struct {
	slaTargets map[string]time.Duration
}

// New creates a performance analyzer. SLA targets key transitions by
// "A -> B" or single activities by name; for an activity the observed value
// is the wait from that activity to its successor.
func New(slaTargets map[string]time.Duration) *Analyzer {
	return &Analyzer{slaTargets: slaTargets}
}

type transition struct{ from, to string }

// Analyze computes durations, bottlenecks, and SLA compliance.
func (a *Analyzer) Analyze(log *eventlog.Log) (*Result, error) {
	var caseDurations []time.Duration
	waits := make(map[transition][]time.Duration)
	caseSeen := make(map[transition]int)
	outWaits := make(map[string][]time.Duration)

	log.Each(func(tr *eventlog.Trace) bool {
		if tr.Len() == 0 {
			return true
		}
		caseDurations = append(caseDurations, tr.Duration())

		seenInCase := make(map[transition]bool)
		for i := 1; i < tr.Len(); i++ {
			prev, curr := tr.Event(i-1), tr.Event(i)
			t := transition{prev.Activity, curr.Activity}
			wait := curr.Timestamp.Sub(prev.Timestamp)
			waits[t] = append(waits[t], wait)
			outWaits[prev.Activity] = append(outWaits[prev.Activity], wait)
			if !seenInCase[t] {
				seenInCase[t] = true
				caseSeen[t]++
			}
		}
		return true
	})

	result := &Result{CaseCount: len(caseDurations)}
	if len(caseDurations) > 0 {
		sort.Slice(caseDurations, func(i, j int) bool { return caseDurations[i] < caseDurations[j] })
		result.CaseDurations = CaseDurations{
			Median: percentile(caseDurations, 0.50),
			P90:    percentile(caseDurations, 0.90),
			P99:    percentile(caseDurations, 0.99),
		}
	}

	result.Bottlenecks = a.findBottlenecks(waits, caseSeen, len(caseDurations))
	result.SLACompliance = a.checkSLAs(waits, outWaits)

	return result, nil
}

func (a *Analyzer) findBottlenecks(waits map[transition][]time.Duration, caseSeen map[transition]int, caseCount int) []Bottleneck {
	if caseCount == 0 {
		return nil
	}

	// Global median over every observed wait.
	var all []time.Duration
	for _, ws := range waits {
		all = append(all, ws...)
	}
	if len(all) == 0 {
		return nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	globalMedian := percentile(all, 0.50)

	var bottlenecks []Bottleneck
	for t, ws := range waits {
		share := float64(caseSeen[t]) / float64(caseCount)
		if share < bottleneckMinShare {
			continue
		}
		sorted := append([]time.Duration(nil), ws...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		median := percentile(sorted, 0.50)
		if globalMedian > 0 && float64(median) < bottleneckFactor*float64(globalMedian) {
			continue
		}
		if globalMedian == 0 && median == 0 {
			continue
		}
		bottlenecks = append(bottlenecks, Bottleneck{
			From:           t.from,
			To:             t.to,
			MedianDuration: median,
			Frequency:      len(ws),
			Impact:         median.Hours() * float64(len(ws)),
		})
	}

	sort.SliceStable(bottlenecks, func(i, j int) bool {
		if bottlenecks[i].Impact != bottlenecks[j].Impact {
			return bottlenecks[i].Impact > bottlenecks[j].Impact
		}
		if bottlenecks[i].From != bottlenecks[j].From {
			return bottlenecks[i].From < bottlenecks[j].From
		}
		return bottlenecks[i].To < bottlenecks[j].To
	})
	return bottlenecks
}

func (a *Analyzer) checkSLAs(waits map[transition][]time.Duration, outWaits map[string][]time.Duration) []SLAResult {
	if len(a.slaTargets) == 0 {
		return nil
	}

	keys := make([]string, 0, len(a.slaTargets))
	for key := range a.slaTargets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var results []SLAResult
	for _, key := range keys {
		bound := a.slaTargets[key]
		var samples []time.Duration
		if t, ok := parseEdgeKey(key); ok {
			samples = waits[t]
		} else {
			samples = outWaits[key]
		}
		if len(samples) == 0 {
			continue
		}
		sorted := append([]time.Duration(nil), samples...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		p90 := percentile(sorted, 0.90)

		status := SLAMet
		switch {
		case p90 > bound:
			status = SLABreached
		case float64(p90) >= 0.80*float64(bound):
			status = SLAAtRisk
		}
		results = append(results, SLAResult{Target: key, Bound: bound, Observed: p90, Status: status})
	}
	return results
}

// parseEdgeKey splits an "A -> B" SLA key into a transition.
func parseEdgeKey(key string) (transition, bool) {
	const sep = " -> "
	for i := 0; i+len(sep) <= len(key); i++ {
		if key[i:i+len(sep)] == sep {
			return transition{key[:i], key[i+len(sep):]}, true
		}
	}
	return transition{}, false
}

// percentile returns the nearest-rank percentile of a sorted slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
