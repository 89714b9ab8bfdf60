package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBuiltinClassification verifies the shipped operation-to-tier table.
func TestBuiltinClassification(t *testing.T) {
	c := NewClassifier()

	cases := map[string]int{
		"analyze_process":    TierAssessment,
		"export_report":      TierAssessment,
		"migrate_dry_run":    TierDevelopment,
		"clear_checkpoints":  TierDevelopment,
		"migrate_staging":    TierStaging,
		"migrate_production": TierProduction,
		"delete_target_data": TierProduction,
	}
	for op, tier := range cases {
		assert.Equal(t, tier, c.Tier(op), op)
	}
}

// TestUnknownOperationFailsSafe verifies unclassified operations land in the
// production tier.
func TestUnknownOperationFailsSafe(t *testing.T) {
	c := NewClassifier()
	assert.Equal(t, TierProduction, c.Tier("drop_all_tables"))
}

// TestRegisterValidatesTier verifies registration rejects made-up tiers and
// overrides the builtin table.
func TestRegisterValidatesTier(t *testing.T) {
	c := NewClassifier()

	require.Error(t, c.Register("custom_op", 9))
	require.NoError(t, c.Register("custom_op", TierDevelopment))
	assert.Equal(t, TierDevelopment, c.Tier("custom_op"))
}

// TestRequiredApprovers verifies the approver quorum per tier.
func TestRequiredApprovers(t *testing.T) {
	assert.Equal(t, 0, RequiredApprovers(TierAssessment))
	assert.Equal(t, 0, RequiredApprovers(TierDevelopment))
	assert.Equal(t, 1, RequiredApprovers(TierStaging))
	assert.Equal(t, 2, RequiredApprovers(TierProduction))
	// Unknown tiers get the production quorum.
	assert.Equal(t, 2, RequiredApprovers(7))
}

func TestTierLabel(t *testing.T) {
	assert.Equal(t, "Staging", TierLabel(TierStaging))
	assert.Equal(t, "Unknown", TierLabel(0))
}

// TestCheckPermissionTierLimit verifies a user below the operation's tier is
// denied with a reason.
func TestCheckPermissionTierLimit(t *testing.T) {
	c := NewClassifier()
	user := UserContext{UserID: "amy", MaxTier: TierDevelopment}

	d := c.CheckPermission("migrate_staging", user)
	assert.False(t, d.Allowed)
	assert.Equal(t, TierStaging, d.Tier)
	assert.NotEmpty(t, d.Reason)

	d = c.CheckPermission("migrate_dry_run", user)
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reason)
}

// TestCheckPermissionProductionRole verifies tier 4 needs the admin or
// production role on top of the tier limit.
func TestCheckPermissionProductionRole(t *testing.T) {
	c := NewClassifier()

	noRole := UserContext{UserID: "amy", MaxTier: TierProduction}
	d := c.CheckPermission("migrate_production", noRole)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "role")

	admin := UserContext{UserID: "amy", MaxTier: TierProduction, Roles: []string{"admin"}}
	assert.True(t, c.CheckPermission("migrate_production", admin).Allowed)

	operator := UserContext{UserID: "bob", MaxTier: TierProduction, Roles: []string{"production"}}
	assert.True(t, c.CheckPermission("load_production", operator).Allowed)
}

// TestOperationsSorted verifies the listing is stable.
func TestOperationsSorted(t *testing.T) {
	ops := NewClassifier().Operations()
	require.NotEmpty(t, ops)
	for i := 1; i < len(ops); i++ {
		assert.Less(t, ops[i-1], ops[i])
	}
}
