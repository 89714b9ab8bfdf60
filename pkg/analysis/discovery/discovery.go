// Package discovery implements process discovery over an event log using a
// Heuristic Miner: directly-follows counting, dependency scoring, loop
// detection, and AND-split inference.
package discovery

import (
	"sort"

	"github.com/erpflow/erpflow/pkg/eventlog"
)

// Parallelism thresholds: both directions of a pair must carry at least
// parallelMinCount observations and the smaller direction must reach
// parallelBalance of the larger before a transition is flagged AND-parallel.
const (
	parallelMinCount = 5
	parallelBalance  = 0.65
)

// Edge is a discovered transition with its dependency score.
type Edge struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Frequency  int     `json:"frequency"`
	Dependency float64 `json:"dependency"`
	Parallel   bool    `json:"parallel,omitempty"`
}

// L1Loop is a self-loop on a single activity.
type L1Loop struct {
	Activity  string  `json:"activity"`
	Frequency int     `json:"frequency"`
	Score     float64 `json:"score"`
}

// L2Loop is a length-two loop between two activities (a -> b -> a).
type L2Loop struct {
	ActivityA string  `json:"activity_a"`
	ActivityB string  `json:"activity_b"`
	Frequency int     `json:"frequency"`
	Score     float64 `json:"score"`
}

// Model is the discovered process model. It is immutable after emission.
type Model struct {
	Activities      []string       `json:"activities"`
	Edges           []Edge         `json:"edges"`
	L1Loops         []L1Loop       `json:"l1_loops,omitempty"`
	L2Loops         []L2Loop       `json:"l2_loops,omitempty"`
	StartActivities map[string]int `json:"start_activities"`
	EndActivities   map[string]int `json:"end_activities"`
}

// Options configures the miner.
type Options struct {
	// DependencyThreshold is the minimum |dependency| for an edge to be
	// retained.
	DependencyThreshold float64
}

// DefaultOptions returns the standard miner configuration.
func DefaultOptions() Options {
	return Options{DependencyThreshold: 0.5}
}

// Miner discovers a process model from directly-follows statistics.
type Miner struct {
	opts Options
}

// New creates a heuristic miner.
func New(opts Options) *Miner {
	if opts.DependencyThreshold <= 0 {
		opts.DependencyThreshold = DefaultOptions().DependencyThreshold
	}
	return &Miner{opts: opts}
}

type pair struct{ a, b string }

// Mine discovers the process model for the log.
func (m *Miner) Mine(log *eventlog.Log) (*Model, error) {
	follows := make(map[pair]int)
	l2 := make(map[pair]int)
	starts := make(map[string]int)
	ends := make(map[string]int)
	activities := make(map[string]struct{})

	log.Each(func(tr *eventlog.Trace) bool {
		seq := tr.Activities()
		if len(seq) == 0 {
			return true
		}
		starts[seq[0]]++
		ends[seq[len(seq)-1]]++
		for i, act := range seq {
			activities[act] = struct{}{}
			if i > 0 {
				follows[pair{seq[i-1], act}]++
			}
			if i >= 2 && seq[i-2] == act && seq[i-1] != act {
				l2[pair{act, seq[i-1]}]++
			}
		}
		return true
	})

	model := &Model{
		StartActivities: starts,
		EndActivities:   ends,
	}
	for act := range activities {
		model.Activities = append(model.Activities, act)
	}
	sort.Strings(model.Activities)

	// Dependency scoring. Self-loops become L1 loops rather than edges.
	for p, ab := range follows {
		if p.a == p.b {
			model.L1Loops = append(model.L1Loops, L1Loop{
				Activity:  p.a,
				Frequency: ab,
				Score:     float64(ab) / float64(ab+1),
			})
			continue
		}
		ba := follows[pair{p.b, p.a}]
		dep := float64(ab-ba) / float64(ab+ba+1)
		parallel := isParallel(ab, ba)
		// Balanced high-traffic pairs score near-zero dependency in both
		// directions; keep them as AND-parallel edges instead of dropping.
		if dep < m.opts.DependencyThreshold && !parallel {
			continue
		}
		model.Edges = append(model.Edges, Edge{
			Source:     p.a,
			Target:     p.b,
			Frequency:  ab,
			Dependency: dep,
			Parallel:   parallel,
		})
	}

	// L2 loops carry a symmetric score over both rotations.
	seenL2 := make(map[pair]bool)
	for p, aba := range l2 {
		canonical := p
		if p.b < p.a {
			canonical = pair{p.b, p.a}
		}
		if seenL2[canonical] {
			continue
		}
		seenL2[canonical] = true
		bab := l2[pair{p.b, p.a}]
		model.L2Loops = append(model.L2Loops, L2Loop{
			ActivityA: canonical.a,
			ActivityB: canonical.b,
			Frequency: aba + bab,
			Score:     float64(aba+bab) / float64(aba+bab+1),
		})
	}

	m.repairConnectivity(model, follows)
	sortModel(model)

	return model, nil
}

// isParallel infers an AND-split when both directions are frequent and
// roughly balanced.
func isParallel(ab, ba int) bool {
	if ab < parallelMinCount || ba < parallelMinCount {
		return false
	}
	lo, hi := ab, ba
	if lo > hi {
		lo, hi = hi, lo
	}
	return float64(lo)/float64(hi) >= parallelBalance
}

// repairConnectivity keeps below-threshold edges when an activity would
// otherwise be unreachable from the start set. The strongest incoming edge
// of each disconnected activity is retained.
func (m *Miner) repairConnectivity(model *Model, follows map[pair]int) {
	reachable := make(map[string]bool)
	for act := range model.StartActivities {
		reachable[act] = true
	}

	adj := make(map[string][]string)
	for _, e := range model.Edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	var queue []string
	for act := range reachable {
		queue = append(queue, act)
	}
	for len(queue) > 0 {
		act := queue[0]
		queue = queue[1:]
		for _, next := range adj[act] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	var disconnected []string
	for _, act := range model.Activities {
		if !reachable[act] {
			disconnected = append(disconnected, act)
		}
	}
	sort.Strings(disconnected)

	existing := make(map[pair]bool, len(model.Edges))
	for _, e := range model.Edges {
		existing[pair{e.Source, e.Target}] = true
	}

	for _, act := range disconnected {
		var best *Edge
		for p, ab := range follows {
			if p.b != act || p.a == p.b {
				continue
			}
			ba := follows[pair{p.b, p.a}]
			dep := float64(ab-ba) / float64(ab+ba+1)
			if best == nil || dep > best.Dependency ||
				(dep == best.Dependency && p.a < best.Source) {
				best = &Edge{Source: p.a, Target: act, Frequency: ab, Dependency: dep}
			}
		}
		if best != nil && !existing[pair{best.Source, best.Target}] {
			existing[pair{best.Source, best.Target}] = true
			model.Edges = append(model.Edges, *best)
		}
	}
}

func sortModel(model *Model) {
	sort.SliceStable(model.Edges, func(i, j int) bool {
		if model.Edges[i].Source != model.Edges[j].Source {
			return model.Edges[i].Source < model.Edges[j].Source
		}
		return model.Edges[i].Target < model.Edges[j].Target
	})
	sort.SliceStable(model.L1Loops, func(i, j int) bool {
		return model.L1Loops[i].Activity < model.L1Loops[j].Activity
	})
	sort.SliceStable(model.L2Loops, func(i, j int) bool {
		if model.L2Loops[i].ActivityA != model.L2Loops[j].ActivityA {
			return model.L2Loops[i].ActivityA < model.L2Loops[j].ActivityA
		}
		return model.L2Loops[i].ActivityB < model.L2Loops[j].ActivityB
	})
}
