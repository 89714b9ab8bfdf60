package quality

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/erpflow/erpflow/pkg/errors"
)

// Rule is one catalogue entry. Catalogues are flat YAML lists maintained by
// the migration team; the pattern applies to the named field.
type Rule struct {
	ID          string `json:"id" yaml:"id"`
	Field       string `json:"field" yaml:"field"`
	Pattern     string `json:"pattern" yaml:"pattern"`
	Severity    string `json:"severity" yaml:"severity"`
	Category    string `json:"category" yaml:"category"`
	Remediation string `json:"remediation" yaml:"remediation"`
}

// RuleSet is a named rule catalogue.
type RuleSet struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Rules []Rule `json:"rules" yaml:"rules"`
}

// LoadRuleSet reads a rule catalogue from a YAML file.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfigInvalid, "failed to read rule set %s", path)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfigInvalid, "failed to parse rule set %s", path)
	}

	for i, rule := range rs.Rules {
		if rule.ID == "" || rule.Field == "" || rule.Pattern == "" {
			return nil, errors.Newf(errors.CodeConfigInvalid, "rule %d in %s is missing id, field, or pattern", i, path)
		}
		if rule.Severity != SeverityError && rule.Severity != SeverityWarning {
			return nil, errors.Newf(errors.CodeConfigInvalid, "rule %s has unknown severity %q", rule.ID, rule.Severity)
		}
	}
	return &rs, nil
}

// Checks converts the catalogue into format checks runnable by a Checker.
func (rs *RuleSet) Checks() []Check {
	checks := make([]Check, 0, len(rs.Rules))
	for _, rule := range rs.Rules {
		checks = append(checks, Check{
			Type:     CheckFormat,
			Name:     rule.ID,
			Severity: rule.Severity,
			Field:    rule.Field,
			Pattern:  rule.Pattern,
			Message:  rule.Remediation,
		})
	}
	return checks
}
