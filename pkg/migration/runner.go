package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/erpflow/erpflow/pkg/metrics"
	"github.com/erpflow/erpflow/pkg/migration/quality"
)

// lifecyclePhases in execution order.
var lifecyclePhases = []string{PhaseExtract, PhaseTransform, PhaseValidate, PhaseLoad}

// RunnerConfig wires the lifecycle runner.
type RunnerConfig struct {
	Logger *slog.Logger

	// ShowProgress renders a terminal progress bar across the phases.
	ShowProgress bool

	// Metrics enables Prometheus counters per run.
	Metrics bool
}

// Runner executes migration objects through the full lifecycle. Failures in
// any phase end the run with an error status on the result; the runner never
// propagates extractor or loader faults to the caller.
type Runner struct {
	cfg RunnerConfig
}

// NewRunner creates a lifecycle runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{cfg: cfg}
}

// Run executes extract, transform, validate, load for one object. Load is
// skipped when validation produced error-severity findings; the overall
// status is then validation_failed. Warnings never block.
func (r *Runner) Run(ctx context.Context, obj Object) *RunResult {
	result := &RunResult{
		ObjectID:  obj.ObjectID(),
		Name:      obj.Name(),
		Status:    StatusCompleted,
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		result.Duration = time.Since(result.StartedAt)
		if r.cfg.Metrics {
			metrics.ObserveMigration(result.Status)
		}
	}()

	var bar *progressbar.ProgressBar
	if r.cfg.ShowProgress {
		bar = progressbar.NewOptions(len(lifecyclePhases),
			progressbar.OptionSetDescription(fmt.Sprintf("migrating %s", obj.ObjectID())),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	advance := func() {
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	// Extract.
	records, ok := r.extractPhase(ctx, obj, result)
	if !ok {
		return result
	}
	advance()

	// Transform.
	transformed, ok := r.transformPhase(obj, result, records)
	if !ok {
		return result
	}
	advance()

	// Validate.
	blocked, ok := r.validatePhase(obj, result, transformed)
	if !ok {
		return result
	}
	advance()

	// Load.
	if blocked {
		result.Phases = append(result.Phases, PhaseResult{
			Name:        PhaseLoad,
			Status:      PhaseStatusSkipped,
			Reason:      reasonValidationErrors,
			RecordCount: 0,
		})
		result.Status = StatusValidationFailed
		r.cfg.Logger.Warn("load skipped",
			slog.String("object_id", obj.ObjectID()),
			slog.Int("validation_errors", result.Stats.ValidationErrors))
		advance()
		return result
	}
	r.loadPhase(ctx, obj, result, transformed)
	advance()

	r.cfg.Logger.Info("migration run finished",
		slog.String("object_id", obj.ObjectID()),
		slog.String("status", result.Status),
		slog.Int("loaded", result.Stats.Loaded),
		slog.Int("load_failed", result.Stats.LoadFailed))

	return result
}

// failPhase records a phase fault and flips the run to error status.
func (r *Runner) failPhase(result *RunResult, phase string, started time.Time, err error) {
	result.Phases = append(result.Phases, PhaseResult{
		Name:     phase,
		Status:   PhaseStatusError,
		Message:  err.Error(),
		Duration: time.Since(started),
	})
	result.Status = StatusError
	r.cfg.Logger.Error("migration phase failed",
		slog.String("object_id", result.ObjectID),
		slog.String("phase", phase),
		slog.String("error", err.Error()))
}

// recovered wraps one phase call; panics become recorded faults so a broken
// object cannot take the runner down.
func recovered(phase string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in %s phase: %v", phase, rec)
		}
	}()
	return fn()
}

func (r *Runner) extractPhase(ctx context.Context, obj Object, result *RunResult) ([]map[string]interface{}, bool) {
	started := time.Now()
	var records []map[string]interface{}
	err := recovered(PhaseExtract, func() error {
		var err error
		records, err = obj.Extract(ctx)
		return err
	})
	if err != nil {
		r.failPhase(result, PhaseExtract, started, err)
		return nil, false
	}
	result.Phases = append(result.Phases, PhaseResult{
		Name:        PhaseExtract,
		Status:      PhaseStatusCompleted,
		RecordCount: len(records),
		Duration:    time.Since(started),
	})
	result.Stats.Extracted = len(records)
	return records, true
}

func (r *Runner) transformPhase(obj Object, result *RunResult, records []map[string]interface{}) ([]map[string]interface{}, bool) {
	started := time.Now()
	var transformed []map[string]interface{}
	err := recovered(PhaseTransform, func() error {
		var err error
		transformed, err = obj.Transform(records)
		return err
	})
	if err != nil {
		r.failPhase(result, PhaseTransform, started, err)
		return nil, false
	}
	result.Phases = append(result.Phases, PhaseResult{
		Name:        PhaseTransform,
		Status:      PhaseStatusCompleted,
		RecordCount: len(transformed),
		Duration:    time.Since(started),
	})
	result.Stats.Transformed = len(transformed)
	return transformed, true
}

// validatePhase returns blocked=true when an error-severity finding must
// stop the load.
func (r *Runner) validatePhase(obj Object, result *RunResult, records []map[string]interface{}) (bool, bool) {
	started := time.Now()
	var findings []quality.Finding
	err := recovered(PhaseValidate, func() error {
		var err error
		findings, err = obj.Validate(records)
		return err
	})
	if err != nil {
		r.failPhase(result, PhaseValidate, started, err)
		return false, false
	}

	summary := quality.Summarize(findings)
	result.Findings = findings
	result.Stats.ValidationErrors = summary.Errors
	result.Stats.ValidationWarnings = summary.Warnings
	result.Phases = append(result.Phases, PhaseResult{
		Name:        PhaseValidate,
		Status:      PhaseStatusCompleted,
		RecordCount: len(records),
		Message:     fmt.Sprintf("%d error(s), %d warning(s)", summary.Errors, summary.Warnings),
		Duration:    time.Since(started),
	})
	return quality.HasBlocking(findings), true
}

func (r *Runner) loadPhase(ctx context.Context, obj Object, result *RunResult, records []map[string]interface{}) {
	started := time.Now()
	var outcome *LoadOutcome
	err := recovered(PhaseLoad, func() error {
		var err error
		outcome, err = obj.Load(ctx, records)
		return err
	})
	if err != nil {
		r.failPhase(result, PhaseLoad, started, err)
		return
	}

	result.Stats.Loaded = outcome.Loaded
	result.Stats.LoadFailed = outcome.Failed
	msg := ""
	if outcome.Failed > 0 {
		msg = fmt.Sprintf("%d record(s) rejected by target", outcome.Failed)
	}
	result.Phases = append(result.Phases, PhaseResult{
		Name:        PhaseLoad,
		Status:      PhaseStatusCompleted,
		RecordCount: outcome.Loaded,
		Message:     msg,
		Duration:    time.Since(started),
	})
}
