// Package kpi aggregates prior analysis results into scalar KPIs with
// bootstrap confidence intervals. The engine itself never fails: a KPI whose
// inputs are absent is emitted with a nil value and a missing-inputs list.
package kpi

import (
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/erpflow/erpflow/pkg/analysis/conformance"
	"github.com/erpflow/erpflow/pkg/analysis/performance"
	"github.com/erpflow/erpflow/pkg/analysis/socialnet"
	"github.com/erpflow/erpflow/pkg/analysis/variants"
	"github.com/erpflow/erpflow/pkg/eventlog"
)

// KPI groups.
const (
	GroupTime    = "time"
	GroupQuality = "quality"
	GroupVolume  = "volume"
)

// Bootstrap parameters: up to maxIterations resamples, stopping early once
// the interval width changes by less than stabilizeTolerance between batches.
const (
	maxIterations      = 1000
	stabilizeBatch     = 100
	stabilizeTolerance = 0.01
)

// ConfidenceInterval bounds a KPI estimate.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Level float64 `json:"level"`
}

// KPI is one aggregated indicator.
type KPI struct {
	Name          string              `json:"name"`
	Group         string              `json:"group"`
	Value         *float64            `json:"value"`
	Unit          string              `json:"unit"`
	CI            *ConfidenceInterval `json:"confidence_interval,omitempty"`
	MissingInputs []string            `json:"missing_inputs,omitempty"`
}

// Report is the KPI engine output, grouped by KPI family.
type Report struct {
	Time    []KPI `json:"time"`
	Quality []KPI `json:"quality"`
	Volume  []KPI `json:"volume"`
}

// All returns every KPI across groups.
func (r *Report) All() []KPI {
	out := make([]KPI, 0, len(r.Time)+len(r.Quality)+len(r.Volume))
	out = append(out, r.Time...)
	out = append(out, r.Quality...)
	out = append(out, r.Volume...)
	return out
}

// Inputs carries the prior phase results the engine aggregates. Any field
// except Log may be nil when the producing phase failed or was skipped.
type Inputs struct {
	Log         *eventlog.Log
	Variants    *variants.Result
	Conformance *conformance.Result
	Performance *performance.Result
	Social      *socialnet.Result
}

// Options configures the engine.
type Options struct {
	ConfidenceLevel float64
	// Seed pins the bootstrap RNG for reproducible runs. Each KPI derives
	// its own stream from it so intervals stay independent.
	Seed int64
}

// DefaultOptions returns the standard engine configuration.
func DefaultOptions() Options {
	return Options{ConfidenceLevel: 0.95, Seed: 1}
}

// Engine aggregates KPIs.
type Engine struct {
	opts Options
}

// New creates a KPI engine.
func New(opts Options) *Engine {
	if opts.ConfidenceLevel <= 0 || opts.ConfidenceLevel >= 1 {
		opts.ConfidenceLevel = DefaultOptions().ConfidenceLevel
	}
	if opts.Seed == 0 {
		opts.Seed = DefaultOptions().Seed
	}
	return &Engine{opts: opts}
}

// Aggregate builds the KPI report from whatever inputs exist.
func (e *Engine) Aggregate(in Inputs) (*Report, error) {
	report := &Report{}

	caseHours, caseRework, caseEvents := perCaseSamples(in.Log)
	kpiSeed := e.opts.Seed

	// --- time ---
	report.Time = append(report.Time, e.bootstrapKPI(
		"median_cycle_time", GroupTime, "hours", caseHours, median, kpiSeed))
	kpiSeed++
	report.Time = append(report.Time, e.bootstrapKPI(
		"mean_cycle_time", GroupTime, "hours", caseHours, mean, kpiSeed))
	kpiSeed++

	// --- quality ---
	report.Quality = append(report.Quality, e.bootstrapKPI(
		"rework_rate", GroupQuality, "ratio", caseRework, mean, kpiSeed))
	kpiSeed++
	report.Quality = append(report.Quality, pointKPI(
		"fitness", GroupQuality, "ratio",
		func() (float64, bool) {
			if in.Conformance == nil {
				return 0, false
			}
			return in.Conformance.Fitness, true
		}, "conformance"))
	report.Quality = append(report.Quality, pointKPI(
		"conformance_rate", GroupQuality, "percent",
		func() (float64, bool) {
			if in.Conformance == nil {
				return 0, false
			}
			return in.Conformance.ConformanceRate, true
		}, "conformance"))
	report.Quality = append(report.Quality, pointKPI(
		"workload_cv", GroupQuality, "ratio",
		func() (float64, bool) {
			if in.Social == nil {
				return 0, false
			}
			return in.Social.Workload.CoefficientOfVariation, true
		}, "social"))

	// --- volume ---
	report.Volume = append(report.Volume, pointKPI(
		"total_cases", GroupVolume, "cases",
		func() (float64, bool) {
			if in.Log == nil {
				return 0, false
			}
			return float64(in.Log.CaseCount()), true
		}, "event_log"))
	report.Volume = append(report.Volume, pointKPI(
		"total_events", GroupVolume, "events",
		func() (float64, bool) {
			if in.Log == nil {
				return 0, false
			}
			return float64(in.Log.EventCount()), true
		}, "event_log"))
	report.Volume = append(report.Volume, pointKPI(
		"variant_count", GroupVolume, "variants",
		func() (float64, bool) {
			if in.Variants == nil {
				return 0, false
			}
			return float64(in.Variants.TotalVariantCount), true
		}, "variants"))
	report.Volume = append(report.Volume, e.bootstrapKPI(
		"events_per_case", GroupVolume, "events", caseEvents, mean, kpiSeed))

	return report, nil
}

// perCaseSamples derives the scalar per-case series the bootstrap resamples.
func perCaseSamples(log *eventlog.Log) (hours, rework, events []float64) {
	if log == nil {
		return nil, nil, nil
	}
	log.Each(func(tr *eventlog.Trace) bool {
		if tr.Len() > 0 {
			hours = append(hours, tr.Duration().Hours())
		}
		events = append(events, float64(tr.Len()))

		seen := make(map[string]int, tr.Len())
		flag := 0.0
		for _, act := range tr.Activities() {
			seen[act]++
			if seen[act] > 1 {
				flag = 1.0
			}
		}
		rework = append(rework, flag)
		return true
	})
	return hours, rework, events
}

func pointKPI(name, group, unit string, get func() (float64, bool), input string) KPI {
	k := KPI{Name: name, Group: group, Unit: unit}
	if v, ok := get(); ok {
		k.Value = &v
	} else {
		k.MissingInputs = []string{input}
	}
	return k
}

func (e *Engine) bootstrapKPI(name, group, unit string, samples []float64, stat func([]float64) float64, seed int64) KPI {
	k := KPI{Name: name, Group: group, Unit: unit}
	if len(samples) == 0 {
		k.MissingInputs = []string{"event_log"}
		return k
	}

	v := stat(samples)
	k.Value = &v

	if ci := e.bootstrap(samples, stat, seed); ci != nil {
		k.CI = ci
	}
	return k
}

// bootstrap resamples the series with replacement and returns the percentile
// confidence interval. Resampling batches run in parallel; each worker owns
// an RNG stream derived from the KPI seed, so runs are reproducible.
func (e *Engine) bootstrap(samples []float64, stat func([]float64) float64, seed int64) *ConfidenceInterval {
	if len(samples) < 2 {
		return nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > 4 {
		workers = 4
	}

	var (
		mu    sync.Mutex
		stats []float64
	)

	runBatch := func(rng *rand.Rand, n int) []float64 {
		batch := make([]float64, 0, n)
		resample := make([]float64, len(samples))
		for i := 0; i < n; i++ {
			for j := range resample {
				resample[j] = samples[rng.Intn(len(samples))]
			}
			batch = append(batch, stat(resample))
		}
		return batch
	}

	prevWidth := math.Inf(1)
	for done := 0; done < maxIterations; done += stabilizeBatch {
		var g errgroup.Group
		per := stabilizeBatch / workers
		for w := 0; w < workers; w++ {
			w := w
			base := seed*1000 + int64(done) + int64(w)
			g.Go(func() error {
				batch := runBatch(rand.New(rand.NewSource(base)), per)
				mu.Lock()
				stats = append(stats, batch...)
				mu.Unlock()
				return nil
			})
		}
		// Workers never return errors; Wait is for synchronization.
		_ = g.Wait()

		lower, upper := percentileBounds(stats, e.opts.ConfidenceLevel)
		width := upper - lower
		if prevWidth > 0 && math.Abs(width-prevWidth) <= stabilizeTolerance*math.Abs(prevWidth) {
			prevWidth = width
			break
		}
		prevWidth = width
	}

	lower, upper := percentileBounds(stats, e.opts.ConfidenceLevel)
	return &ConfidenceInterval{Lower: lower, Upper: upper, Level: e.opts.ConfidenceLevel}
}

func percentileBounds(stats []float64, level float64) (lower, upper float64) {
	sorted := append([]float64(nil), stats...)
	sort.Float64s(sorted)
	alpha := (1 - level) / 2
	return percentileOf(sorted, alpha), percentileOf(sorted, 1-alpha)
}

func percentileOf(sorted []float64, p float64) float64 {
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

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
