// Package migration runs migration objects through the extract, transform,
// validate, load lifecycle. Validation findings of error severity block the
// load phase; extractor and loader I/O failures end the run with an error
// status instead of propagating.
package migration

import (
	"context"
	"time"

	"github.com/erpflow/erpflow/pkg/errors"
	"github.com/erpflow/erpflow/pkg/extract"
	"github.com/erpflow/erpflow/pkg/migration/fieldmap"
	"github.com/erpflow/erpflow/pkg/migration/quality"
)

// Overall run statuses.
const (
	StatusCompleted        = "completed"
	StatusValidationFailed = "validation_failed"
	StatusError            = "error"
)

// Phase names, in lifecycle order.
const (
	PhaseExtract   = "extract"
	PhaseTransform = "transform"
	PhaseValidate  = "validate"
	PhaseLoad      = "load"
)

// Phase statuses.
const (
	PhaseStatusCompleted = "completed"
	PhaseStatusSkipped   = "skipped"
	PhaseStatusError     = "error"
)

// reasonValidationErrors is the recorded reason when load is skipped.
const reasonValidationErrors = "Validation errors found"

// PhaseResult records one lifecycle phase's outcome.
type PhaseResult struct {
	Name        string        `json:"name"`
	Status      string        `json:"status"`
	RecordCount int           `json:"record_count"`
	Reason      string        `json:"reason,omitempty"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Stats aggregates record counts across the run.
type Stats struct {
	Extracted          int `json:"extracted"`
	Transformed        int `json:"transformed"`
	ValidationErrors   int `json:"validation_errors"`
	ValidationWarnings int `json:"validation_warnings"`
	Loaded             int `json:"loaded"`
	LoadFailed         int `json:"load_failed"`
}

// RunResult is the structured outcome of one ETLV run.
type RunResult struct {
	ObjectID  string            `json:"object_id"`
	Name      string            `json:"name"`
	Status    string            `json:"status"`
	Phases    []PhaseResult     `json:"phases"`
	Findings  []quality.Finding `json:"findings,omitempty"`
	Stats     Stats             `json:"stats"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
}

// Phase returns the result for a phase name, or nil.
func (r *RunResult) Phase(name string) *PhaseResult {
	for i := range r.Phases {
		if r.Phases[i].Name == name {
			return &r.Phases[i]
		}
	}
	return nil
}

// Object is one migration object: a named unit of source data with its
// field mappings and quality checks.
type Object interface {
	// ObjectID is the stable identifier, e.g. "customer_master".
	ObjectID() string

	// Name is the human-readable label.
	Name() string

	// FieldMappings returns the transform rules.
	FieldMappings() []fieldmap.Mapping

	// QualityChecks returns the validation rules.
	QualityChecks() []quality.Check

	// Extract pulls raw source records.
	Extract(ctx context.Context) ([]map[string]interface{}, error)

	// Transform maps raw records to the target shape.
	Transform(records []map[string]interface{}) ([]map[string]interface{}, error)

	// Validate runs the quality checks against transformed records.
	Validate(records []map[string]interface{}) ([]quality.Finding, error)

	// Load writes transformed records to the target gateway.
	Load(ctx context.Context, records []map[string]interface{}) (*LoadOutcome, error)
}

// StandardObject composes an extractor, a mapping engine, a quality checker,
// and a load gateway into a migration object. Concrete objects are values of
// this type; behaviour variation lives in the collaborators.
type StandardObject struct {
	objectID  string
	name      string
	extractor extract.Extractor
	mode      extract.Mode
	engine    *fieldmap.Engine
	checker   *quality.Checker
	loader    Loader
}

// NewStandardObject builds a migration object from its collaborators.
func NewStandardObject(objectID, name string, extractor extract.Extractor, mode extract.Mode, engine *fieldmap.Engine, checker *quality.Checker, loader Loader) *StandardObject {
	return &StandardObject{
		objectID:  objectID,
		name:      name,
		extractor: extractor,
		mode:      mode,
		engine:    engine,
		checker:   checker,
		loader:    loader,
	}
}

// ObjectID returns the object identifier.
func (o *StandardObject) ObjectID() string { return o.objectID }

// Name returns the human-readable label.
func (o *StandardObject) Name() string { return o.name }

// FieldMappings returns the transform rules.
func (o *StandardObject) FieldMappings() []fieldmap.Mapping { return o.engine.Mappings() }

// QualityChecks returns the validation rules.
func (o *StandardObject) QualityChecks() []quality.Check { return o.checker.Checks() }

// Extract pulls raw records through the extractor in the object's mode.
func (o *StandardObject) Extract(ctx context.Context) ([]map[string]interface{}, error) {
	records, err := o.extractor.Extract(ctx, o.mode)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Fields)
	}
	return out, nil
}

// Transform applies the field mappings.
func (o *StandardObject) Transform(records []map[string]interface{}) ([]map[string]interface{}, error) {
	return o.engine.ApplyAll(records)
}

// Validate runs the configured quality checks.
func (o *StandardObject) Validate(records []map[string]interface{}) ([]quality.Finding, error) {
	return o.checker.Run(records), nil
}

// Load hands the records to the target gateway.
func (o *StandardObject) Load(ctx context.Context, records []map[string]interface{}) (*LoadOutcome, error) {
	if o.loader == nil {
		return nil, errors.New(errors.CodeLoadFailed, "no load gateway configured")
	}
	return o.loader.Load(ctx, o.objectID, records)
}
