package quality

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/erpflow/erpflow/pkg/errors"
)

const sampleRuleSet = `
id: customer_rules
name: Customer master rules
rules:
  - id: CM-001
    field: Country
    pattern: "^[A-Z]{2}$"
    severity: error
    category: format
    remediation: Country must be an ISO alpha-2 code
  - id: CM-002
    field: CustomerID
    pattern: "^[0-9]{10}$"
    severity: warning
    category: format
    remediation: CustomerID should be zero-padded to 10 digits
`

// TestLoadRuleSet verifies catalogue parsing and the conversion into
// runnable format checks.
func TestLoadRuleSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customer.yaml")
	if err := os.WriteFile(path, []byte(sampleRuleSet), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rs, err := LoadRuleSet(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rs.ID != "customer_rules" || len(rs.Rules) != 2 {
		t.Fatalf("ruleset = %+v", rs)
	}

	checks := rs.Checks()
	if len(checks) != 2 {
		t.Fatalf("checks = %+v", checks)
	}
	c := checks[0]
	if c.Type != CheckFormat || c.Name != "CM-001" || c.Field != "Country" || c.Severity != SeverityError {
		t.Errorf("check = %+v", c)
	}
	if c.Message == "" {
		t.Error("remediation must become the finding message")
	}

	// The converted checks must be runnable as-is.
	checker, err := NewChecker(checks)
	if err != nil {
		t.Fatalf("checker: %v", err)
	}
	findings := checker.Run([]map[string]interface{}{
		{"Country": "DE", "CustomerID": "0000000123"},
		{"Country": "Germany", "CustomerID": "123"},
	})
	if len(findings) != 2 {
		t.Errorf("findings = %+v", findings)
	}
	for _, f := range findings {
		if len(f.RecordIndices) != 1 || f.RecordIndices[0] != 1 {
			t.Errorf("finding = %+v", f)
		}
	}
}

// TestLoadRuleSetValidation verifies incomplete and misconfigured rules are
// rejected at load time.
func TestLoadRuleSetValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing field", "id: r\nrules:\n  - id: R-1\n    pattern: x\n    severity: error\n"},
		{"missing pattern", "id: r\nrules:\n  - id: R-1\n    field: A\n    severity: error\n"},
		{"bad severity", "id: r\nrules:\n  - id: R-1\n    field: A\n    pattern: x\n    severity: fatal\n"},
	}
	for _, c := range cases {
		path := filepath.Join(t.TempDir(), "rs.yaml")
		if err := os.WriteFile(path, []byte(c.yaml), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
		_, err := LoadRuleSet(path)
		if !errors.IsCode(err, errors.CodeConfigInvalid) {
			t.Errorf("%s: err = %v", c.name, err)
		}
	}
}

// TestLoadRuleSetMissingFile verifies the error code on filesystem failure.
func TestLoadRuleSetMissingFile(t *testing.T) {
	_, err := LoadRuleSet(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.IsCode(err, errors.CodeConfigInvalid) {
		t.Errorf("err = %v", err)
	}
}
