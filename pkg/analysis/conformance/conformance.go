// Package conformance compares an event log against a reference process
// model, producing fitness, precision, and deviation statistics.
package conformance

import (
	"github.com/erpflow/erpflow/pkg/errors"
	"github.com/erpflow/erpflow/pkg/eventlog"
	"github.com/erpflow/erpflow/pkg/refmodel"
)

// Deviation kinds.
const (
	DeviationMissingActivity = "missing-activity"
	DeviationExtraActivity   = "extra-activity"
	DeviationWrongOrder      = "wrong-order"
	DeviationUnexpectedStart = "unexpected-start"
	DeviationUnexpectedEnd   = "unexpected-end"
)

// DeviationStats groups observed deviations by kind.
type DeviationStats struct {
	Total               int            `json:"total"`
	ByType              map[string]int `json:"by_type"`
	CasesWithDeviations int            `json:"cases_with_deviations"`
}

// Result is the conformance checking output.
type Result struct {
	ReferenceModelID string         `json:"reference_model_id"`
	Fitness          float64        `json:"fitness"`
	Precision        float64        `json:"precision"`
	ConformanceRate  float64        `json:"conformance_rate"` // percent of fully-conformant cases
	DeviationStats   DeviationStats `json:"deviation_stats"`
}

// Checker evaluates log conformance against one reference model.
type Checker struct{}

// New creates a conformance checker.
func New() *Checker {
	return &Checker{}
}

// Check compares the log to the model. A malformed model (nil activity or
// edge set) fails the phase; the orchestrator isolates the failure.
func (c *Checker) Check(log *eventlog.Log, model *refmodel.Model) (*Result, error) {
	if model == nil {
		return nil, errors.ReferenceModelInvalid("", "model is nil")
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}

	refEdges := model.EdgeSet()
	result := &Result{
		ReferenceModelID: model.ID,
		DeviationStats:   DeviationStats{ByType: make(map[string]int)},
	}

	observedEdges := make(map[string]struct{})
	observedActs := make(map[string]struct{})

	var (
		fitnessSum      float64
		caseCount       int
		conformantCases int
	)

	log.Each(func(tr *eventlog.Trace) bool {
		caseCount++
		seq := tr.Activities()
		caseDeviations := 0

		if len(seq) == 0 {
			fitnessSum++
			conformantCases++
			return true
		}

		for _, act := range seq {
			observedActs[act] = struct{}{}
			if !model.HasActivity(act) {
				caseDeviations++
				result.DeviationStats.ByType[DeviationExtraActivity]++
			}
		}

		if !model.IsStart(seq[0]) {
			caseDeviations++
			result.DeviationStats.ByType[DeviationUnexpectedStart]++
		}
		if !model.IsEnd(seq[len(seq)-1]) {
			caseDeviations++
			result.DeviationStats.ByType[DeviationUnexpectedEnd]++
		}

		edgeTotal := 0
		edgeHits := 0
		for i := 1; i < len(seq); i++ {
			a, b := seq[i-1], seq[i]
			edge := refmodel.Edge{Source: a, Target: b}.String()
			observedEdges[edge] = struct{}{}
			edgeTotal++
			// An edge-less model constrains no transition.
			if len(refEdges) == 0 {
				edgeHits++
				continue
			}
			if _, ok := refEdges[edge]; ok {
				edgeHits++
				continue
			}
			if model.HasActivity(a) && model.HasActivity(b) {
				caseDeviations++
				result.DeviationStats.ByType[DeviationWrongOrder]++
			}
		}

		// A case with no transitions has nothing the model can forbid.
		if edgeTotal == 0 {
			fitnessSum++
		} else {
			fitnessSum += float64(edgeHits) / float64(edgeTotal)
		}
		if edgeHits == edgeTotal {
			conformantCases++
		}
		if caseDeviations > 0 {
			result.DeviationStats.CasesWithDeviations++
			result.DeviationStats.Total += caseDeviations
		}
		return true
	})

	// Model activities never exercised anywhere in the log.
	for _, act := range model.Activities {
		if _, ok := observedActs[act]; !ok {
			result.DeviationStats.ByType[DeviationMissingActivity]++
			result.DeviationStats.Total++
		}
	}

	if caseCount > 0 {
		result.Fitness = fitnessSum / float64(caseCount)
		result.ConformanceRate = float64(conformantCases) / float64(caseCount) * 100
	} else {
		result.Fitness = 1
		result.ConformanceRate = 100
	}

	switch {
	case len(refEdges) > 0:
		hits := 0
		for edge := range refEdges {
			if _, ok := observedEdges[edge]; ok {
				hits++
			}
		}
		result.Precision = float64(hits) / float64(len(refEdges))
	case len(observedEdges) > 0:
		result.Precision = 0
	default:
		result.Precision = 1
	}

	return result, nil
}
