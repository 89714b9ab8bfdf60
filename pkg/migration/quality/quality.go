// Package quality validates transformed records before load. Checks cover
// required fields, exact and fuzzy duplicates, referential integrity,
// format, and numeric range. Error-severity findings block the load phase;
// warnings do not.
package quality

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/erpflow/erpflow/pkg/errors"
)

// Finding severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Check types.
const (
	CheckRequired       = "required"
	CheckExactDuplicate = "exact_duplicate"
	CheckFuzzyDuplicate = "fuzzy_duplicate"
	CheckReferential    = "referential"
	CheckFormat         = "format"
	CheckRange          = "range"
)

// Fuzzy duplicate limits.
const (
	defaultFuzzyThreshold = 0.85
	fuzzyRecordCap        = 10000
	fuzzyWorkers          = 4
)

// Check is one configured quality rule.
type Check struct {
	Type     string `json:"type" yaml:"type"`
	Severity string `json:"severity" yaml:"severity"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`

	// Fields keys composite checks (exact duplicates). Field targets
	// single-field checks.
	Fields []string `json:"fields,omitempty" yaml:"fields,omitempty"`
	Field  string   `json:"field,omitempty" yaml:"field,omitempty"`

	// Format check.
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// Referential check.
	ValidSet []string `json:"valid_set,omitempty" yaml:"valid_set,omitempty"`

	// Range check. Nil bounds are open.
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`

	// Fuzzy duplicate similarity threshold; zero means the default 0.85.
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// Finding is one detected quality issue.
type Finding struct {
	CheckType string `json:"check_type"`
	CheckName string `json:"check_name,omitempty"`
	Severity  string `json:"severity"`
	Field     string `json:"field,omitempty"`
	Message   string `json:"message"`

	// RecordIndices point into the validated slice.
	RecordIndices []int `json:"record_indices,omitempty"`
}

// Summary partitions findings by severity.
type Summary struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// Summarize counts findings by severity.
func Summarize(findings []Finding) Summary {
	var s Summary
	for _, f := range findings {
		switch f.Severity {
		case SeverityError:
			s.Errors++
		case SeverityWarning:
			s.Warnings++
		}
	}
	return s
}

// HasBlocking reports whether any finding carries error severity.
func HasBlocking(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Checker runs a configured check set against a record slice.
type Checker struct {
	checks   []Check
	patterns map[int]*regexp.Regexp
}

// NewChecker compiles the check set. Unknown check types and invalid regex
// patterns are configuration errors.
func NewChecker(checks []Check) (*Checker, error) {
	c := &Checker{checks: checks, patterns: make(map[int]*regexp.Regexp)}
	for i, check := range checks {
		switch check.Type {
		case CheckRequired, CheckExactDuplicate, CheckFuzzyDuplicate, CheckReferential, CheckRange:
		case CheckFormat:
			re, err := regexp.Compile(check.Pattern)
			if err != nil {
				return nil, errors.Wrapf(err, errors.CodeValidationFailed, "check %d: invalid pattern %q", i, check.Pattern)
			}
			c.patterns[i] = re
		default:
			return nil, errors.Newf(errors.CodeValidationFailed, "check %d: unknown check type %q", i, check.Type)
		}
		if check.Severity != SeverityError && check.Severity != SeverityWarning {
			return nil, errors.Newf(errors.CodeValidationFailed, "check %d: unknown severity %q", i, check.Severity)
		}
	}
	return c, nil
}

// Checks returns the configured check set.
func (c *Checker) Checks() []Check {
	return c.checks
}

// Run evaluates every check against the records and returns the findings.
func (c *Checker) Run(records []map[string]interface{}) []Finding {
	var findings []Finding
	for i, check := range c.checks {
		switch check.Type {
		case CheckRequired:
			findings = append(findings, c.checkRequired(check, records)...)
		case CheckExactDuplicate:
			findings = append(findings, c.checkExactDuplicates(check, records)...)
		case CheckFuzzyDuplicate:
			findings = append(findings, c.checkFuzzyDuplicates(check, records)...)
		case CheckReferential:
			findings = append(findings, c.checkReferential(check, records)...)
		case CheckFormat:
			findings = append(findings, c.checkFormat(check, c.patterns[i], records)...)
		case CheckRange:
			findings = append(findings, c.checkRange(check, records)...)
		}
	}
	return findings
}

func fieldString(record map[string]interface{}, field string) (string, bool) {
	v, ok := record[field]
	if !ok || v == nil {
		return "", false
	}
	s := fmt.Sprintf("%v", v)
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func (c *Checker) checkRequired(check Check, records []map[string]interface{}) []Finding {
	fields := check.Fields
	if len(fields) == 0 && check.Field != "" {
		fields = []string{check.Field}
	}

	var findings []Finding
	for _, field := range fields {
		var missing []int
		for i, rec := range records {
			if _, ok := fieldString(rec, field); !ok {
				missing = append(missing, i)
			}
		}
		if len(missing) > 0 {
			findings = append(findings, Finding{
				CheckType:     CheckRequired,
				CheckName:     check.Name,
				Severity:      check.Severity,
				Field:         field,
				Message:       fmt.Sprintf("required field %s missing in %d record(s)", field, len(missing)),
				RecordIndices: missing,
			})
		}
	}
	return findings
}

func (c *Checker) checkExactDuplicates(check Check, records []map[string]interface{}) []Finding {
	seen := make(map[string][]int)
	for i, rec := range records {
		parts := make([]string, 0, len(check.Fields))
		for _, field := range check.Fields {
			v, _ := fieldString(rec, field)
			parts = append(parts, v)
		}
		key := strings.Join(parts, "\x1f")
		seen[key] = append(seen[key], i)
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var findings []Finding
	for _, key := range keys {
		indices := seen[key]
		if len(indices) < 2 {
			continue
		}
		findings = append(findings, Finding{
			CheckType:     CheckExactDuplicate,
			CheckName:     check.Name,
			Severity:      check.Severity,
			Message:       fmt.Sprintf("%d records share key %s on fields %s", len(indices), strings.ReplaceAll(key, "\x1f", "|"), strings.Join(check.Fields, ",")),
			RecordIndices: indices,
		})
	}
	return findings
}

// checkFuzzyDuplicates compares records pairwise on one field using
// normalized Levenshtein similarity. The pairwise scan is quadratic, so it
// is capped and parallelized over row ranges.
func (c *Checker) checkFuzzyDuplicates(check Check, records []map[string]interface{}) []Finding {
	threshold := check.Threshold
	if threshold == 0 {
		threshold = defaultFuzzyThreshold
	}

	n := len(records)
	if n > fuzzyRecordCap {
		n = fuzzyRecordCap
	}

	values := make([]string, n)
	for i := 0; i < n; i++ {
		values[i], _ = fieldString(records[i], check.Field)
	}

	type pair struct{ a, b int }
	var mu sync.Mutex
	var pairs []pair

	var g errgroup.Group
	g.SetLimit(fuzzyWorkers)
	chunk := (n + fuzzyWorkers - 1) / fuzzyWorkers
	if chunk == 0 {
		chunk = 1
	}
	for start := 0; start < n; start += chunk {
		start := start
		end := start + chunk
		if end > n {
			end = n
		}
		g.Go(func() error {
			var local []pair
			for i := start; i < end; i++ {
				if values[i] == "" {
					continue
				}
				for j := i + 1; j < n; j++ {
					if values[j] == "" || values[i] == values[j] {
						continue
					}
					if similarity(values[i], values[j]) >= threshold {
						local = append(local, pair{i, j})
					}
				}
			}
			if len(local) > 0 {
				mu.Lock()
				pairs = append(pairs, local...)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].a != pairs[j].a {
			return pairs[i].a < pairs[j].a
		}
		return pairs[i].b < pairs[j].b
	})

	var findings []Finding
	for _, p := range pairs {
		findings = append(findings, Finding{
			CheckType:     CheckFuzzyDuplicate,
			CheckName:     check.Name,
			Severity:      check.Severity,
			Field:         check.Field,
			Message:       fmt.Sprintf("records %d and %d have near-identical %s values (%q vs %q)", p.a, p.b, check.Field, values[p.a], values[p.b]),
			RecordIndices: []int{p.a, p.b},
		})
	}
	return findings
}

func (c *Checker) checkReferential(check Check, records []map[string]interface{}) []Finding {
	valid := make(map[string]bool, len(check.ValidSet))
	for _, v := range check.ValidSet {
		valid[v] = true
	}

	var bad []int
	for i, rec := range records {
		v, ok := fieldString(rec, check.Field)
		if !ok {
			continue
		}
		if !valid[v] {
			bad = append(bad, i)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return []Finding{{
		CheckType:     CheckReferential,
		CheckName:     check.Name,
		Severity:      check.Severity,
		Field:         check.Field,
		Message:       fmt.Sprintf("%d record(s) reference values of %s outside the valid set", len(bad), check.Field),
		RecordIndices: bad,
	}}
}

func (c *Checker) checkFormat(check Check, re *regexp.Regexp, records []map[string]interface{}) []Finding {
	var bad []int
	for i, rec := range records {
		v, ok := fieldString(rec, check.Field)
		if !ok {
			continue
		}
		if !re.MatchString(v) {
			bad = append(bad, i)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	msg := check.Message
	if msg == "" {
		msg = fmt.Sprintf("%d record(s) fail format %s on field %s", len(bad), check.Pattern, check.Field)
	} else {
		msg = fmt.Sprintf("%s (%d record(s))", msg, len(bad))
	}
	return []Finding{{
		CheckType:     CheckFormat,
		CheckName:     check.Name,
		Severity:      check.Severity,
		Field:         check.Field,
		Message:       msg,
		RecordIndices: bad,
	}}
}

func (c *Checker) checkRange(check Check, records []map[string]interface{}) []Finding {
	var bad []int
	for i, rec := range records {
		raw, ok := fieldString(rec, check.Field)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			bad = append(bad, i)
			continue
		}
		if check.Min != nil && f < *check.Min {
			bad = append(bad, i)
			continue
		}
		if check.Max != nil && f > *check.Max {
			bad = append(bad, i)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return []Finding{{
		CheckType:     CheckRange,
		CheckName:     check.Name,
		Severity:      check.Severity,
		Field:         check.Field,
		Message:       fmt.Sprintf("%d record(s) have %s outside the allowed range", len(bad), check.Field),
		RecordIndices: bad,
	}}
}

// similarity is normalized Levenshtein: 1 - distance/maxLen.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(editDistance(ra, rb))/float64(maxLen)
}

func editDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
