package safety

import (
	"context"
	"log/slog"

	"github.com/erpflow/erpflow/pkg/audit"
	"github.com/erpflow/erpflow/pkg/errors"
)

// GateOptions modifies one gated execution.
type GateOptions struct {
	// ApprovalID names the approval request covering this execution.
	// Required for tier-3+ operations.
	ApprovalID string

	// DryRun skips the protected action but still runs the full
	// permission and approval checks, and is audited with its own
	// outcome. Dry runs never bypass tier gates.
	DryRun bool

	// Resource names what the operation touches, for the audit trail.
	Resource string
}

// GateResult reports what the gate decided and whether the action ran.
type GateResult struct {
	Decision Decision `json:"decision"`
	Executed bool     `json:"executed"`
	DryRun   bool     `json:"dry_run"`
	Blocked  string   `json:"blocked,omitempty"`
}

// Gate wraps operations in tier checks, approval verification, and audit
// writes. Denials come back in the result, not as errors.
type Gate struct {
	classifier *Classifier
	approvals  *Manager
	auditor    audit.Store
	logger     *slog.Logger
}

// NewGate builds a gate. The auditor may be nil, disabling the trail (only
// sensible in tests).
func NewGate(classifier *Classifier, approvals *Manager, auditor audit.Store, logger *slog.Logger) *Gate {
	if classifier == nil {
		classifier = NewClassifier()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		classifier: classifier,
		approvals:  approvals,
		auditor:    auditor,
		logger:     logger,
	}
}

// Execute runs fn behind the tier gate. Tier-3+ operations need an approved
// request; tier-2+ executions are audited with their outcome. The returned
// error is fn's own error, or an infrastructure fault; a policy denial sets
// Blocked on the result instead.
func (g *Gate) Execute(ctx context.Context, operation string, user UserContext, opts GateOptions, fn func(context.Context) error) (*GateResult, error) {
	decision := g.classifier.CheckPermission(operation, user)
	result := &GateResult{Decision: decision, DryRun: opts.DryRun}

	if !decision.Allowed {
		result.Blocked = decision.Reason
		g.record(audit.KindAccess, user.UserID, opts.Resource, operation, audit.OutcomeDenied, map[string]interface{}{
			"tier":   decision.Tier,
			"reason": decision.Reason,
		})
		return result, nil
	}

	if RequiredApprovers(decision.Tier) > 0 {
		blocked, err := g.verifyApproval(operation, opts.ApprovalID)
		if err != nil {
			return result, err
		}
		if blocked != "" {
			result.Blocked = blocked
			g.record(audit.KindAccess, user.UserID, opts.Resource, operation, audit.OutcomeDenied, map[string]interface{}{
				"tier":        decision.Tier,
				"approval_id": opts.ApprovalID,
				"reason":      blocked,
			})
			return result, nil
		}
	}

	if opts.DryRun {
		g.recordExecution(decision.Tier, user.UserID, opts.Resource, operation, audit.OutcomeDryRun, opts.ApprovalID)
		return result, nil
	}

	err := fn(ctx)
	outcome := audit.OutcomeSuccess
	if err != nil {
		outcome = audit.OutcomeError
	}
	g.recordExecution(decision.Tier, user.UserID, opts.Resource, operation, outcome, opts.ApprovalID)

	result.Executed = err == nil
	return result, err
}

// verifyApproval checks that the named request exists, matches the
// operation, and is approved. A non-approved state is a policy block.
func (g *Gate) verifyApproval(operation, approvalID string) (string, error) {
	if g.approvals == nil {
		return "no approval manager configured", nil
	}
	if approvalID == "" {
		return "operation requires an approved request", nil
	}

	req, err := g.approvals.Get(approvalID)
	if err != nil {
		if errors.IsCode(err, errors.CodeRequestNotFound) {
			return "approval request not found", nil
		}
		return "", err
	}
	if req.Operation != operation {
		return "approval request covers a different operation", nil
	}
	if req.Status != StatusApproved {
		return "approval request is " + req.Status, nil
	}
	return "", nil
}

// record writes an audit entry, logging rather than failing when the trail
// itself is broken.
func (g *Gate) record(kind, actor, resource, action, outcome string, metadata map[string]interface{}) {
	if g.auditor == nil {
		return
	}
	_, err := g.auditor.Append(audit.Entry{
		Kind:     kind,
		Actor:    actor,
		Resource: resource,
		Action:   action,
		Outcome:  outcome,
		Metadata: metadata,
	})
	if err != nil {
		g.logger.Error("failed to write audit entry",
			slog.String("action", action),
			slog.String("error", err.Error()))
	}
}

// recordExecution audits tier-2+ executions. Tier-1 reads stay out of the
// trail.
func (g *Gate) recordExecution(tier int, actor, resource, operation, outcome, approvalID string) {
	if tier < TierDevelopment {
		return
	}
	metadata := map[string]interface{}{"tier": tier}
	if approvalID != "" {
		metadata["approval_id"] = approvalID
	}
	g.record(audit.KindExecution, actor, resource, operation, outcome, metadata)
}
