package socialnet

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/erpflow/erpflow/pkg/errors"
)

// ruleFile is the YAML shape for segregation-of-duty rule files.
type ruleFile struct {
	Rules []SoDRule `yaml:"rules"`
}

// LoadRules reads segregation-of-duty rules from a YAML file. Each rule
// needs a name and at least two activities; a rule with fewer can never be
// violated.
func LoadRules(path string) ([]SoDRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfigInvalid, "failed to read SoD rules %q", path)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfigInvalid, "failed to parse SoD rules %q", path)
	}

	for i, rule := range rf.Rules {
		if rule.Name == "" {
			return nil, errors.Newf(errors.CodeConfigInvalid, "SoD rule %d in %q has no name", i, path)
		}
		if len(rule.Activities) < 2 {
			return nil, errors.Newf(errors.CodeConfigInvalid, "SoD rule %q needs at least two activities", rule.Name)
		}
	}
	return rf.Rules, nil
}
