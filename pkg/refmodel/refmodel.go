// Package refmodel holds named reference process models: the activity sets,
// allowed transitions, and SLA targets that conformance and performance
// analysis compare observed behaviour against.
package refmodel

import (
	"fmt"
	"time"

	"github.com/erpflow/erpflow/pkg/errors"
)

// Edge is a directed transition between two activities.
type Edge struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// String renders the edge in "A -> B" form, the key format used for SLA
// targets and deviation reporting.
func (e Edge) String() string {
	return e.Source + " -> " + e.Target
}

// Model is an immutable reference process model.
type Model struct {
	ID              string                   `json:"id" yaml:"id"`
	Name            string                   `json:"name" yaml:"name"`
	Activities      []string                 `json:"activities" yaml:"activities"`
	Edges           []Edge                   `json:"edges" yaml:"edges"`
	StartActivities []string                 `json:"start_activities" yaml:"start_activities"`
	EndActivities   []string                 `json:"end_activities" yaml:"end_activities"`
	SLATargets      map[string]time.Duration `json:"sla_targets,omitempty" yaml:"sla_targets,omitempty"`
}

// Validate checks the structural invariants of the model. A nil activity or
// edge set is malformed; so is any edge or start/end activity referencing an
// activity outside the set.
func (m *Model) Validate() error {
	if m.Activities == nil {
		return errors.ReferenceModelInvalid(m.ID, "activity set is nil")
	}
	if m.Edges == nil {
		return errors.ReferenceModelInvalid(m.ID, "edge set is nil")
	}

	set := make(map[string]struct{}, len(m.Activities))
	for _, a := range m.Activities {
		set[a] = struct{}{}
	}

	for _, e := range m.Edges {
		if _, ok := set[e.Source]; !ok {
			return errors.ReferenceModelInvalid(m.ID, fmt.Sprintf("edge source %q not in activity set", e.Source))
		}
		if _, ok := set[e.Target]; !ok {
			return errors.ReferenceModelInvalid(m.ID, fmt.Sprintf("edge target %q not in activity set", e.Target))
		}
	}
	for _, a := range m.StartActivities {
		if _, ok := set[a]; !ok {
			return errors.ReferenceModelInvalid(m.ID, fmt.Sprintf("start activity %q not in activity set", a))
		}
	}
	for _, a := range m.EndActivities {
		if _, ok := set[a]; !ok {
			return errors.ReferenceModelInvalid(m.ID, fmt.Sprintf("end activity %q not in activity set", a))
		}
	}
	return nil
}

// HasEdge reports whether the model allows the transition a -> b.
func (m *Model) HasEdge(a, b string) bool {
	for _, e := range m.Edges {
		if e.Source == a && e.Target == b {
			return true
		}
	}
	return false
}

// EdgeSet returns the edges as a set keyed by Edge.String().
func (m *Model) EdgeSet() map[string]struct{} {
	set := make(map[string]struct{}, len(m.Edges))
	for _, e := range m.Edges {
		set[e.String()] = struct{}{}
	}
	return set
}

// HasActivity reports whether the activity belongs to the model.
func (m *Model) HasActivity(a string) bool {
	for _, act := range m.Activities {
		if act == a {
			return true
		}
	}
	return false
}

// IsStart reports whether a is an allowed start activity.
func (m *Model) IsStart(a string) bool {
	for _, s := range m.StartActivities {
		if s == a {
			return true
		}
	}
	return false
}

// IsEnd reports whether a is an allowed end activity.
func (m *Model) IsEnd(a string) bool {
	for _, e := range m.EndActivities {
		if e == a {
			return true
		}
	}
	return false
}
