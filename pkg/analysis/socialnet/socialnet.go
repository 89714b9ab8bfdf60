// Package socialnet mines organizational structure from an event log:
// handover-of-work networks, resource centrality, workload distribution, and
// segregation-of-duty violations.
package socialnet

import (
	"math"
	"sort"

	"github.com/erpflow/erpflow/pkg/eventlog"
)

// balancedCVLimit is the workload coefficient-of-variation at or below which
// the distribution counts as balanced.
const balancedCVLimit = 0.5

// SoDRule forbids one resource from performing two or more of the listed
// activities within a single case.
type SoDRule struct {
	Name       string   `json:"name" yaml:"name"`
	Activities []string `json:"activities" yaml:"activities"`
}

// SoDViolation is one observed rule breach.
type SoDViolation struct {
	Rule       string   `json:"rule"`
	CaseID     string   `json:"case_id"`
	Resource   string   `json:"resource"`
	Activities []string `json:"activities"`
}

// SoDSummary aggregates rule violations.
type SoDSummary struct {
	TotalViolations int            `json:"total_violations"`
	ByRule          map[string]int `json:"by_rule,omitempty"`
	Violations      []SoDViolation `json:"violations,omitempty"`
}

// Handover counts how often work passed from one resource to another.
type Handover struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// CentralityEntry ranks a resource by degree centrality in the handover
// network.
type CentralityEntry struct {
	Resource string  `json:"resource"`
	Degree   int     `json:"degree"`
	Score    float64 `json:"score"`
}

// Workload describes the distribution of events over resources.
type Workload struct {
	PerResource            map[string]int `json:"per_resource"`
	CoefficientOfVariation float64        `json:"coefficient_of_variation"`
	IsBalanced             bool           `json:"is_balanced"`
}

// Result is the social network mining output.
type Result struct {
	ResourceCount int               `json:"resource_count"`
	Handovers     []Handover        `json:"handovers"`
	Centrality    []CentralityEntry `json:"centrality"`
	Workload      Workload          `json:"workload"`
	SoD           SoDSummary        `json:"sod_violations"`
}

// Miner builds the handover network and checks SoD rules.
type Miner struct {
	rules []SoDRule
}

// New creates a social network miner with the given SoD rules.
func New(rules []SoDRule) *Miner {
	return &Miner{rules: rules}
}

type resourcePair struct{ from, to string }

// Mine analyses the log's resource behaviour.
func (m *Miner) Mine(log *eventlog.Log) (*Result, error) {
	handovers := make(map[resourcePair]int)
	workload := make(map[string]int)

	result := &Result{
		Workload: Workload{PerResource: workload},
		SoD:      SoDSummary{ByRule: make(map[string]int)},
	}

	log.Each(func(tr *eventlog.Trace) bool {
		// Per-resource activity sets for SoD evaluation.
		performed := make(map[string]map[string]struct{})

		var prevResource string
		for i := 0; i < tr.Len(); i++ {
			ev := tr.Event(i)
			if ev.Resource == "" {
				prevResource = ""
				continue
			}
			workload[ev.Resource]++
			if prevResource != "" && prevResource != ev.Resource {
				handovers[resourcePair{prevResource, ev.Resource}]++
			}
			prevResource = ev.Resource

			acts, ok := performed[ev.Resource]
			if !ok {
				acts = make(map[string]struct{})
				performed[ev.Resource] = acts
			}
			acts[ev.Activity] = struct{}{}
		}

		m.checkSoD(tr.CaseID(), performed, result)
		return true
	})

	result.ResourceCount = len(workload)
	result.Handovers = sortHandovers(handovers)
	result.Centrality = degreeCentrality(handovers, workload)
	result.Workload.CoefficientOfVariation = coefficientOfVariation(workload)
	result.Workload.IsBalanced = result.Workload.CoefficientOfVariation <= balancedCVLimit

	return result, nil
}

// checkSoD records a violation whenever one resource performed two or more
// of a rule's activities within the case.
func (m *Miner) checkSoD(caseID string, performed map[string]map[string]struct{}, result *Result) {
	if len(m.rules) == 0 {
		return
	}

	resources := make([]string, 0, len(performed))
	for r := range performed {
		resources = append(resources, r)
	}
	sort.Strings(resources)

	for _, rule := range m.rules {
		for _, resource := range resources {
			acts := performed[resource]
			var hit []string
			for _, ruleAct := range rule.Activities {
				if _, ok := acts[ruleAct]; ok {
					hit = append(hit, ruleAct)
				}
			}
			if len(hit) >= 2 {
				result.SoD.TotalViolations++
				result.SoD.ByRule[rule.Name]++
				result.SoD.Violations = append(result.SoD.Violations, SoDViolation{
					Rule:       rule.Name,
					CaseID:     caseID,
					Resource:   resource,
					Activities: hit,
				})
			}
		}
	}
}

func sortHandovers(handovers map[resourcePair]int) []Handover {
	out := make([]Handover, 0, len(handovers))
	for p, n := range handovers {
		out = append(out, Handover{From: p.from, To: p.to, Count: n})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// degreeCentrality counts distinct handover partners per resource,
// normalized by the number of other resources.
func degreeCentrality(handovers map[resourcePair]int, workload map[string]int) []CentralityEntry {
	partners := make(map[string]map[string]struct{})
	link := func(a, b string) {
		set, ok := partners[a]
		if !ok {
			set = make(map[string]struct{})
			partners[a] = set
		}
		set[b] = struct{}{}
	}
	for p := range handovers {
		link(p.from, p.to)
		link(p.to, p.from)
	}

	n := len(workload)
	entries := make([]CentralityEntry, 0, n)
	for resource := range workload {
		degree := len(partners[resource])
		score := 0.0
		if n > 1 {
			score = float64(degree) / float64(n-1)
		}
		entries = append(entries, CentralityEntry{Resource: resource, Degree: degree, Score: score})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Degree != entries[j].Degree {
			return entries[i].Degree > entries[j].Degree
		}
		return entries[i].Resource < entries[j].Resource
	})
	return entries
}

func coefficientOfVariation(workload map[string]int) float64 {
	if len(workload) == 0 {
		return 0
	}
	var sum float64
	for _, n := range workload {
		sum += float64(n)
	}
	mean := sum / float64(len(workload))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, n := range workload {
		d := float64(n) - mean
		variance += d * d
	}
	variance /= float64(len(workload))
	return math.Sqrt(variance) / mean
}
