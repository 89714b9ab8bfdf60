// Package safety classifies operations into risk tiers, gates writes behind
// permission checks and approvals, and feeds the audit trail. A denial here
// is a result, never an error.
package safety

import (
	"fmt"
	"sort"
	"sync"
)

// Tiers, ordered by risk.
const (
	TierAssessment  = 1
	TierDevelopment = 2
	TierStaging     = 3
	TierProduction  = 4
)

// tierLabels maps a tier to its human label.
var tierLabels = map[int]string{
	TierAssessment:  "Assessment",
	TierDevelopment: "Development",
	TierStaging:     "Staging",
	TierProduction:  "Production",
}

// requiredApprovers maps a tier to how many distinct approvers it needs.
var requiredApprovers = map[int]int{
	TierAssessment:  0,
	TierDevelopment: 0,
	TierStaging:     1,
	TierProduction:  2,
}

// TierLabel returns the label for a tier, or "Unknown".
func TierLabel(tier int) string {
	if label, ok := tierLabels[tier]; ok {
		return label
	}
	return "Unknown"
}

// RequiredApprovers returns how many approvals a tier needs.
func RequiredApprovers(tier int) int {
	if n, ok := requiredApprovers[tier]; ok {
		return n
	}
	return requiredApprovers[TierProduction]
}

// defaultOperations is the builtin classification. Unknown operations fall
// back to tier 4.
var defaultOperations = map[string]int{
	"analyze_process":    TierAssessment,
	"export_report":      TierAssessment,
	"list_extractors":    TierAssessment,
	"extract_mock":       TierDevelopment,
	"migrate_dry_run":    TierDevelopment,
	"clear_checkpoints":  TierDevelopment,
	"migrate_staging":    TierStaging,
	"migrate_production": TierProduction,
	"load_production":    TierProduction,
	"delete_target_data": TierProduction,
}

// Classifier maps operation names to tiers.
type Classifier struct {
	mu         sync.RWMutex
	operations map[string]int
}

// NewClassifier creates a classifier preloaded with the builtin operations.
func NewClassifier() *Classifier {
	ops := make(map[string]int, len(defaultOperations))
	for op, tier := range defaultOperations {
		ops[op] = tier
	}
	return &Classifier{operations: ops}
}

// Register assigns an operation to a tier.
func (c *Classifier) Register(operation string, tier int) error {
	if _, ok := tierLabels[tier]; !ok {
		return fmt.Errorf("unknown tier %d", tier)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.operations[operation] = tier
	return nil
}

// Tier returns the tier for an operation. Unknown operations default to the
// production tier, the fail-safe choice.
func (c *Classifier) Tier(operation string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if tier, ok := c.operations[operation]; ok {
		return tier
	}
	return TierProduction
}

// Operations lists the classified operation names, sorted.
func (c *Classifier) Operations() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.operations))
	for op := range c.operations {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// UserContext carries what permission checks need to know about a caller.
type UserContext struct {
	UserID  string   `json:"user_id"`
	MaxTier int      `json:"max_tier"`
	Roles   []string `json:"roles,omitempty"`
}

// HasRole reports whether the user carries a role.
func (u UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Tier      int    `json:"tier"`
	TierLabel string `json:"tier_label"`
	Reason    string `json:"reason,omitempty"`
}

// CheckPermission decides whether a user may perform an operation. Tier 4
// additionally requires an admin or production role.
func (c *Classifier) CheckPermission(operation string, user UserContext) Decision {
	tier := c.Tier(operation)
	d := Decision{Tier: tier, TierLabel: TierLabel(tier)}

	if user.MaxTier < tier {
		d.Reason = fmt.Sprintf("operation requires tier %d (%s), user is limited to tier %d", tier, d.TierLabel, user.MaxTier)
		return d
	}
	if tier == TierProduction && !user.HasRole("admin") && !user.HasRole("production") {
		d.Reason = "production operations require the admin or production role"
		return d
	}

	d.Allowed = true
	return d
}
