package intelligence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/erpflow/erpflow/pkg/analysis/conformance"
	"github.com/erpflow/erpflow/pkg/analysis/discovery"
	"github.com/erpflow/erpflow/pkg/analysis/kpi"
	"github.com/erpflow/erpflow/pkg/analysis/performance"
	"github.com/erpflow/erpflow/pkg/analysis/socialnet"
	"github.com/erpflow/erpflow/pkg/analysis/variants"
	"github.com/erpflow/erpflow/pkg/errors"
	"github.com/erpflow/erpflow/pkg/eventlog"
	"github.com/erpflow/erpflow/pkg/metrics"
	"github.com/erpflow/erpflow/pkg/refmodel"
)

// Options steers a single analysis run.
type Options struct {
	// ProcessID selects the reference model (and its SLA targets) from the
	// registry. Conformance is skipped when neither ProcessID nor
	// ReferenceModel is set.
	ProcessID string

	// ReferenceModel overrides the registry lookup.
	ReferenceModel *refmodel.Model

	// SLATargets overrides the reference model's SLA targets.
	SLATargets map[string]time.Duration

	// SoDRules are evaluated by the social network phase.
	SoDRules []socialnet.SoDRule

	// Skip names phases to omit deliberately. A skipped phase is neither a
	// result nor an error.
	Skip []string

	// OnProgress is invoked after each completed phase. It is one of the
	// pipeline's few legitimate suspension points.
	OnProgress func(phase string, result interface{})
}

// EngineConfig wires the orchestrator's collaborators.
type EngineConfig struct {
	Registry  *refmodel.Registry
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Metrics   bool
	Variants  variants.Options
	Discovery discovery.Options
	KPI       kpi.Options
}

// Engine runs the six-phase analysis pipeline with per-phase failure
// isolation.
type Engine struct {
	cfg EngineConfig
}

// NewEngine creates an analysis engine. A nil registry falls back to the
// builtin reference models.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Registry == nil {
		cfg.Registry = refmodel.Builtin()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{cfg: cfg}
}

// AnalyzeProcess is the convenience entry point: analyze against the
// registry model for processID.
func (e *Engine) AnalyzeProcess(ctx context.Context, log *eventlog.Log, processID string) (*Report, error) {
	return e.Analyze(ctx, log, Options{ProcessID: processID})
}

// Analyze runs the pipeline. Phase failures land in the report's errors
// list; only a nil log is an error to the caller. Cancellation between
// phases returns the partial report with a single cancelled entry.
func (e *Engine) Analyze(ctx context.Context, log *eventlog.Log, opts Options) (*Report, error) {
	if log == nil {
		return nil, errors.New(errors.CodePhaseFailed, "event log is nil")
	}

	start := time.Now()
	log.Seal()

	report := &Report{
		RunID:           uuid.NewString(),
		ProcessID:       opts.ProcessID,
		EventLogSummary: log.Summary(),
		Timestamp:       time.Now().UTC(),
	}

	model, modelErr := e.resolveModel(opts)
	if model != nil {
		report.ReferenceModelName = model.Name
	}
	slaTargets := opts.SLATargets
	if slaTargets == nil && model != nil {
		slaTargets = model.SLATargets
	}

	skip := make(map[string]bool, len(opts.Skip))
	for _, name := range opts.Skip {
		skip[name] = true
	}
	// Conformance without a model is a deliberate skip, unless the caller
	// named a model that failed to resolve; that is a phase error.
	if model == nil && modelErr == nil {
		skip[PhaseConformance] = true
	}

	cancelled := false
	for _, phase := range PhaseOrder {
		if skip[phase] {
			continue
		}
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, PhaseError{
				Phase:   "cancelled",
				Message: fmt.Sprintf("run cancelled before %s phase", phase),
			})
			cancelled = true
			break
		}

		e.runPhase(ctx, report, phase, func() (interface{}, error) {
			switch phase {
			case PhaseVariants:
				res, err := variants.New(e.cfg.Variants).Analyze(log)
				report.Variants = res
				return res, err
			case PhaseDiscovery:
				res, err := discovery.New(e.cfg.Discovery).Mine(log)
				report.Discovery = res
				return res, err
			case PhaseConformance:
				if modelErr != nil {
					return nil, modelErr
				}
				res, err := conformance.New().Check(log, model)
				report.Conformance = res
				return res, err
			case PhasePerformance:
				res, err := performance.New(slaTargets).Analyze(log)
				report.Performance = res
				return res, err
			case PhaseSocial:
				res, err := socialnet.New(opts.SoDRules).Mine(log)
				report.Social = res
				return res, err
			case PhaseKPIs:
				res, err := kpi.New(e.cfg.KPI).Aggregate(kpi.Inputs{
					Log:         log,
					Variants:    report.Variants,
					Conformance: report.Conformance,
					Performance: report.Performance,
					Social:      report.Social,
				})
				report.KPIs = res
				return res, err
			}
			return nil, errors.New(errors.CodeUnknownPhase, "unknown phase").WithContext("phase", phase)
		}, opts.OnProgress)
	}

	report.Recommendations = buildRecommendations(report)
	report.ExecutiveSummary = buildExecutiveSummary(report)
	report.Duration = time.Since(start)

	if e.cfg.Metrics {
		outcome := metrics.OutcomeSuccess
		if len(report.Errors) > 0 {
			outcome = metrics.OutcomeError
		}
		metrics.ObserveRun(outcome)
	}
	if cancelled {
		e.cfg.Logger.Warn("analysis run cancelled",
			slog.String("run_id", report.RunID),
			slog.Int("completed_phases", len(report.CompletedPhases())))
	}

	return report, nil
}

// runPhase executes one analyzer behind exactly one recovery boundary, so
// orchestrator bookkeeping faults still surface while analyzer faults are
// isolated into the report.
func (e *Engine) runPhase(ctx context.Context, report *Report, phase string, fn func() (interface{}, error), onProgress func(string, interface{})) {
	start := time.Now()

	var span trace.Span
	if e.cfg.Tracer != nil {
		_, span = e.cfg.Tracer.Start(ctx, "phase."+phase,
			trace.WithAttributes(attribute.String("erpflow.phase", phase)))
		defer span.End()
	}

	result, err := func() (result interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Newf(errors.CodePhaseFailed, "panic in %s phase: %v", phase, r)
			}
		}()
		return fn()
	}()

	failed := err != nil
	if e.cfg.Metrics {
		metrics.ObservePhase(phase, time.Since(start), failed)
	}

	if failed {
		e.clearPhase(report, phase)
		report.Errors = append(report.Errors, PhaseError{Phase: phase, Message: err.Error()})
		e.cfg.Logger.Warn("phase failed",
			slog.String("phase", phase),
			slog.String("error", err.Error()))
		return
	}

	e.cfg.Logger.Debug("phase completed",
		slog.String("phase", phase),
		slog.Duration("took", time.Since(start)))

	if onProgress != nil {
		onProgress(phase, result)
	}
}

// clearPhase drops any partially assigned result for a failed phase, so the
// report invariant (result present iff phase completed) holds.
func (e *Engine) clearPhase(report *Report, phase string) {
	switch phase {
	case PhaseVariants:
		report.Variants = nil
	case PhaseDiscovery:
		report.Discovery = nil
	case PhaseConformance:
		report.Conformance = nil
	case PhasePerformance:
		report.Performance = nil
	case PhaseSocial:
		report.Social = nil
	case PhaseKPIs:
		report.KPIs = nil
	}
}

func (e *Engine) resolveModel(opts Options) (*refmodel.Model, error) {
	if opts.ReferenceModel != nil {
		return opts.ReferenceModel, nil
	}
	if opts.ProcessID == "" {
		return nil, nil
	}
	model := e.cfg.Registry.Get(opts.ProcessID)
	if model == nil {
		return nil, errors.Newf(errors.CodeReferenceModelInvalid, "no reference model registered for process %q", opts.ProcessID)
	}
	return model, nil
}
