// Package variants enumerates the distinct activity sequences of an event
// log, identifies the happy path, and measures rework.
package variants

import (
	"sort"
	"strings"

	"github.com/erpflow/erpflow/pkg/eventlog"
)

// topReworkActivities caps the rework ranking length.
const topReworkActivities = 10

// Variant is one distinct activity sequence and the cases that follow it.
type Variant struct {
	Sequence  []string `json:"sequence"`
	Frequency int      `json:"frequency"`
	CaseIDs   []string `json:"case_ids"`
}

// ReworkActivity is an activity ranked by how often it repeats within cases.
type ReworkActivity struct {
	Activity    string `json:"activity"`
	RepeatCount int    `json:"repeat_count"`
	CaseCount   int    `json:"case_count"`
}

// Rework summarises repeated activities across the log.
type Rework struct {
	ReworkRate    float64          `json:"rework_rate"`
	CasesAffected int              `json:"cases_affected"`
	TopActivities []ReworkActivity `json:"top_activities"`
}

// Result is the variant analysis output.
type Result struct {
	TotalVariantCount int       `json:"total_variant_count"`
	TotalCaseCount    int       `json:"total_case_count"`
	Variants          []Variant `json:"variants"`
	HappyPath         *Variant  `json:"happy_path,omitempty"`
	Rework            Rework    `json:"rework"`
	ClusterCount      int       `json:"cluster_count,omitempty"`

	// TruncatedAt is the MaxVariants limit when the variant list was cut
	// short. When set, the reported variant frequencies sum to less than
	// TotalCaseCount; the full-log counts above are unaffected.
	TruncatedAt int `json:"truncated_at,omitempty"`
}

// Options configures the analyzer.
type Options struct {
	// MaxVariants truncates the reported variant list (0 = no limit).
	// Counts and rework are always computed over the full log.
	MaxVariants int

	// EnableClustering merges near-duplicate variants whose normalized
	// sequence edit distance is at or below ClusterThreshold.
	EnableClustering bool
	ClusterThreshold float64
}

// DefaultOptions returns the standard analyzer configuration.
func DefaultOptions() Options {
	return Options{ClusterThreshold: 0.15}
}

// Analyzer discovers process variants.
type Analyzer struct {
	opts Options
}

// New creates a variant analyzer.
func New(opts Options) *Analyzer {
	if opts.ClusterThreshold <= 0 {
		opts.ClusterThreshold = DefaultOptions().ClusterThreshold
	}
	return &Analyzer{opts: opts}
}

// Analyze enumerates variants over the log.
func (a *Analyzer) Analyze(log *eventlog.Log) (*Result, error) {
	byKey := make(map[string]*Variant)
	var order []string

	reworkCases := 0
	repeatTotals := make(map[string]int)
	repeatCases := make(map[string]int)

	log.Each(func(tr *eventlog.Trace) bool {
		seq := tr.Activities()
		key := strings.Join(seq, "\x1f")

		v, ok := byKey[key]
		if !ok {
			v = &Variant{Sequence: seq}
			byKey[key] = v
			order = append(order, key)
		}
		v.Frequency++
		v.CaseIDs = append(v.CaseIDs, tr.CaseID())

		// Rework: any activity appearing more than once within the case.
		seen := make(map[string]int, len(seq))
		for _, act := range seq {
			seen[act]++
		}
		hasRework := false
		for act, n := range seen {
			if n > 1 {
				hasRework = true
				repeatTotals[act] += n - 1
				repeatCases[act]++
			}
		}
		if hasRework {
			reworkCases++
		}
		return true
	})

	result := &Result{
		TotalCaseCount: log.CaseCount(),
	}

	for _, key := range order {
		result.Variants = append(result.Variants, *byKey[key])
	}
	sortVariants(result.Variants)
	result.TotalVariantCount = len(result.Variants)

	if len(result.Variants) > 0 {
		hp := result.Variants[0]
		result.HappyPath = &hp
	}

	if result.TotalCaseCount > 0 {
		result.Rework.ReworkRate = float64(reworkCases) / float64(result.TotalCaseCount)
	}
	result.Rework.CasesAffected = reworkCases
	result.Rework.TopActivities = rankRework(repeatTotals, repeatCases)

	if a.opts.EnableClustering {
		result.ClusterCount = countClusters(result.Variants, a.opts.ClusterThreshold)
	}

	if a.opts.MaxVariants > 0 && len(result.Variants) > a.opts.MaxVariants {
		result.Variants = result.Variants[:a.opts.MaxVariants]
		result.TruncatedAt = a.opts.MaxVariants
	}

	return result, nil
}

// sortVariants orders by frequency descending; ties break by shortest
// sequence, then lexicographically. This makes the happy path well defined.
func sortVariants(vs []Variant) {
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].Frequency != vs[j].Frequency {
			return vs[i].Frequency > vs[j].Frequency
		}
		if len(vs[i].Sequence) != len(vs[j].Sequence) {
			return len(vs[i].Sequence) < len(vs[j].Sequence)
		}
		return strings.Join(vs[i].Sequence, "\x1f") < strings.Join(vs[j].Sequence, "\x1f")
	})
}

func rankRework(totals map[string]int, cases map[string]int) []ReworkActivity {
	ranked := make([]ReworkActivity, 0, len(totals))
	for act, n := range totals {
		ranked = append(ranked, ReworkActivity{
			Activity:    act,
			RepeatCount: n,
			CaseCount:   cases[act],
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].RepeatCount != ranked[j].RepeatCount {
			return ranked[i].RepeatCount > ranked[j].RepeatCount
		}
		return ranked[i].Activity < ranked[j].Activity
	})
	if len(ranked) > topReworkActivities {
		ranked = ranked[:topReworkActivities]
	}
	return ranked
}

// countClusters greedily groups variants whose normalized edit distance to a
// cluster representative is at or below the threshold. Representatives are
// taken in frequency order, so the densest variants anchor clusters.
func countClusters(vs []Variant, threshold float64) int {
	var reps [][]string
	for _, v := range vs {
		matched := false
		for _, rep := range reps {
			if normalizedEditDistance(v.Sequence, rep) <= threshold {
				matched = true
				break
			}
		}
		if !matched {
			reps = append(reps, v.Sequence)
		}
	}
	return len(reps)
}

// normalizedEditDistance is the Levenshtein distance over activity sequences
// divided by the longer sequence length. Identical sequences score 0.
func normalizedEditDistance(a, b []string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	return float64(editDistance(a, b)) / float64(maxLen)
}

func editDistance(a, b []string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
