package socialnet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/erpflow/erpflow/pkg/errors"
)

// TestLoadRules verifies YAML rule files parse into runnable SoD rules.
func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sod.yaml")
	data := `
rules:
  - name: 4-eyes invoice
    activities:
      - Approve PO
      - Post Invoice
  - name: payment split
    activities: [Post Invoice, Clear Invoice]
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("rules = %+v", rules)
	}
	if rules[0].Name != "4-eyes invoice" || len(rules[0].Activities) != 2 {
		t.Errorf("rule = %+v", rules[0])
	}
}

// TestLoadRulesValidation verifies unnamed and single-activity rules are
// rejected.
func TestLoadRulesValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no name", "rules:\n  - activities: [A, B]\n"},
		{"one activity", "rules:\n  - name: r\n    activities: [A]\n"},
		{"not yaml", ":\n  - nope"},
	}
	for _, c := range cases {
		path := filepath.Join(t.TempDir(), "sod.yaml")
		if err := os.WriteFile(path, []byte(c.yaml), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
		_, err := LoadRules(path)
		if !errors.IsCode(err, errors.CodeConfigInvalid) {
			t.Errorf("%s: err = %v", c.name, err)
		}
	}
}
