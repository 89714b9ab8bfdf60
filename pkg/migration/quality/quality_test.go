package quality

import (
	"testing"

	"github.com/erpflow/erpflow/pkg/errors"
)

func rec(pairs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i].(string)] = pairs[i+1]
	}
	return m
}

func mustChecker(t *testing.T, checks ...Check) *Checker {
	t.Helper()
	c, err := NewChecker(checks)
	if err != nil {
		t.Fatalf("checker: %v", err)
	}
	return c
}

// TestRequiredCheck verifies missing, nil, and blank values all count.
func TestRequiredCheck(t *testing.T) {
	c := mustChecker(t, Check{Type: CheckRequired, Severity: SeverityError, Field: "CustomerID"})

	findings := c.Run([]map[string]interface{}{
		rec("CustomerID", "000001"),
		rec("CustomerID", ""),
		rec("CustomerID", nil),
		rec("Name", "no id at all"),
	})

	if len(findings) != 1 {
		t.Fatalf("findings = %+v", findings)
	}
	f := findings[0]
	if f.Severity != SeverityError || f.Field != "CustomerID" {
		t.Errorf("finding = %+v", f)
	}
	if len(f.RecordIndices) != 3 {
		t.Errorf("indices = %v, want the three bad records", f.RecordIndices)
	}
}

// TestExactDuplicateComposite verifies composite-key duplicate detection.
func TestExactDuplicateComposite(t *testing.T) {
	c := mustChecker(t, Check{
		Type: CheckExactDuplicate, Severity: SeverityError,
		Fields: []string{"Name", "Country"},
	})

	findings := c.Run([]map[string]interface{}{
		rec("Name", "ACME", "Country", "DE"),
		rec("Name", "ACME", "Country", "US"),
		rec("Name", "ACME", "Country", "DE"),
	})

	if len(findings) != 1 {
		t.Fatalf("findings = %+v", findings)
	}
	if got := findings[0].RecordIndices; len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("indices = %v", got)
	}
}

// TestFuzzyDuplicate verifies the similarity threshold behaviour.
func TestFuzzyDuplicate(t *testing.T) {
	c := mustChecker(t, Check{Type: CheckFuzzyDuplicate, Severity: SeverityWarning, Field: "Name"})

	findings := c.Run([]map[string]interface{}{
		rec("Name", "Mueller GmbH"),  // 0
		rec("Name", "Muellers GmbH"), // 1: one insertion in 13 runes, sim ≈ 0.92
		rec("Name", "Completely Different AG"), // 2
	})

	if len(findings) != 1 {
		t.Fatalf("findings = %+v", findings)
	}
	f := findings[0]
	if f.Severity != SeverityWarning {
		t.Errorf("severity = %q", f.Severity)
	}
	if len(f.RecordIndices) != 2 || f.RecordIndices[0] != 0 || f.RecordIndices[1] != 1 {
		t.Errorf("indices = %v", f.RecordIndices)
	}
}

// TestFuzzyDuplicateIgnoresExactMatches verifies identical values are left to
// the exact duplicate check.
func TestFuzzyDuplicateIgnoresExactMatches(t *testing.T) {
	c := mustChecker(t, Check{Type: CheckFuzzyDuplicate, Severity: SeverityWarning, Field: "Name"})
	findings := c.Run([]map[string]interface{}{
		rec("Name", "ACME"),
		rec("Name", "ACME"),
	})
	if len(findings) != 0 {
		t.Errorf("findings = %+v", findings)
	}
}

// TestFuzzyThreshold verifies a custom threshold widens the net.
func TestFuzzyThreshold(t *testing.T) {
	records := []map[string]interface{}{
		rec("Name", "abcdefghij"),
		rec("Name", "abcdefgxyz"), // 3 substitutions in 10: sim 0.7
	}

	strict := mustChecker(t, Check{Type: CheckFuzzyDuplicate, Severity: SeverityWarning, Field: "Name"})
	if got := strict.Run(records); len(got) != 0 {
		t.Errorf("default threshold matched: %+v", got)
	}

	loose := mustChecker(t, Check{Type: CheckFuzzyDuplicate, Severity: SeverityWarning, Field: "Name", Threshold: 0.65})
	if got := loose.Run(records); len(got) != 1 {
		t.Errorf("loose threshold missed: %+v", got)
	}
}

// TestReferentialCheck verifies valid-set membership.
func TestReferentialCheck(t *testing.T) {
	c := mustChecker(t, Check{
		Type: CheckReferential, Severity: SeverityWarning,
		Field: "MaterialType", ValidSet: []string{"FERT", "ROH", "HALB"},
	})

	findings := c.Run([]map[string]interface{}{
		rec("MaterialType", "FERT"),
		rec("MaterialType", "DIEN"),
		rec("MaterialType", ""), // absent values are a required-check concern
	})

	if len(findings) != 1 || len(findings[0].RecordIndices) != 1 || findings[0].RecordIndices[0] != 1 {
		t.Errorf("findings = %+v", findings)
	}
}

// TestFormatCheck verifies pattern matching and the custom message.
func TestFormatCheck(t *testing.T) {
	c := mustChecker(t, Check{
		Type: CheckFormat, Severity: SeverityError,
		Field: "Country", Pattern: "^[A-Z]{2}$",
		Name: "CM-001", Message: "Country must be an ISO alpha-2 code",
	})

	findings := c.Run([]map[string]interface{}{
		rec("Country", "DE"),
		rec("Country", "Germany"),
		rec("Country", "de"),
	})

	if len(findings) != 1 {
		t.Fatalf("findings = %+v", findings)
	}
	f := findings[0]
	if f.CheckName != "CM-001" {
		t.Errorf("check name = %q", f.CheckName)
	}
	if len(f.RecordIndices) != 2 {
		t.Errorf("indices = %v", f.RecordIndices)
	}
}

// TestRangeCheck verifies numeric bounds and non-numeric values.
func TestRangeCheck(t *testing.T) {
	min, max := 0.0, 1000.0
	c := mustChecker(t, Check{
		Type: CheckRange, Severity: SeverityWarning,
		Field: "GrossWeight", Min: &min, Max: &max,
	})

	findings := c.Run([]map[string]interface{}{
		rec("GrossWeight", "10.5"),
		rec("GrossWeight", "-3"),
		rec("GrossWeight", "1200"),
		rec("GrossWeight", "heavy"),
	})

	if len(findings) != 1 || len(findings[0].RecordIndices) != 3 {
		t.Errorf("findings = %+v", findings)
	}
}

// TestCheckerRejectsBadConfig verifies configuration errors surface at build
// time, not run time.
func TestCheckerRejectsBadConfig(t *testing.T) {
	_, err := NewChecker([]Check{{Type: "telepathy", Severity: SeverityError}})
	if !errors.IsCode(err, errors.CodeValidationFailed) {
		t.Errorf("unknown type: %v", err)
	}

	_, err = NewChecker([]Check{{Type: CheckFormat, Severity: SeverityError, Pattern: "["}})
	if !errors.IsCode(err, errors.CodeValidationFailed) {
		t.Errorf("bad pattern: %v", err)
	}

	_, err = NewChecker([]Check{{Type: CheckRequired, Severity: "fatal"}})
	if !errors.IsCode(err, errors.CodeValidationFailed) {
		t.Errorf("bad severity: %v", err)
	}
}

// TestHasBlocking verifies only error severity blocks.
func TestHasBlocking(t *testing.T) {
	warnings := []Finding{{Severity: SeverityWarning}}
	if HasBlocking(warnings) {
		t.Error("warnings must not block")
	}
	mixed := append(warnings, Finding{Severity: SeverityError})
	if !HasBlocking(mixed) {
		t.Error("errors must block")
	}

	s := Summarize(mixed)
	if s.Errors != 1 || s.Warnings != 1 {
		t.Errorf("summary = %+v", s)
	}
}

func TestSimilarity(t *testing.T) {
	if similarity("abc", "abc") != 1 {
		t.Error("identical strings")
	}
	if similarity("", "") != 1 {
		t.Error("empty strings")
	}
	// One substitution in four runes.
	if got := similarity("abcd", "abxd"); got != 0.75 {
		t.Errorf("similarity = %v, want 0.75", got)
	}
}
