// Package fieldmap maps raw source records onto target-system field shapes.
// A mapping copies one source field to a target field, optionally through a
// named conversion, with a default when the source is absent.
package fieldmap

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/erpflow/erpflow/pkg/errors"
)

// Mapping is one field rule. Source may be empty, in which case the target
// is filled from Default alone.
type Mapping struct {
	Source  string      `json:"source,omitempty" yaml:"source,omitempty"`
	Target  string      `json:"target" yaml:"target"`
	Convert string      `json:"convert,omitempty" yaml:"convert,omitempty"`
	Default interface{} `json:"default,omitempty" yaml:"default,omitempty"`
}

// Converter coerces one source value into its target representation.
type Converter func(value interface{}) (interface{}, error)

// The built-in conversions, keyed by the name used in mapping files.
var converters = map[string]Converter{
	"toDecimal":   toDecimal,
	"toDate":      toDate,
	"boolYN":      boolYN,
	"padLeft10":   padLeft10,
	"toUpperCase": toUpperCase,
}

// ConverterNames lists the registered conversion names, sorted.
func ConverterNames() []string {
	names := make([]string, 0, len(converters))
	for name := range converters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Engine applies a mapping set to records.
type Engine struct {
	mappings []Mapping
}

// NewEngine validates the mappings and builds an engine. Every mapping needs
// a target; a named conversion must exist.
func NewEngine(mappings []Mapping) (*Engine, error) {
	for i, m := range mappings {
		if m.Target == "" {
			return nil, errors.Newf(errors.CodeTransformFailed, "mapping %d has no target field", i)
		}
		if m.Convert != "" {
			if _, ok := converters[m.Convert]; !ok {
				return nil, errors.Newf(errors.CodeTransformFailed, "mapping for %s names unknown conversion %q", m.Target, m.Convert)
			}
		}
	}
	return &Engine{mappings: mappings}, nil
}

// Mappings returns the engine's mapping set.
func (e *Engine) Mappings() []Mapping {
	return e.mappings
}

// Apply transforms one source record into its target shape. Unmapped source
// fields are dropped.
func (e *Engine) Apply(record map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(e.mappings))

	for _, m := range e.mappings {
		var value interface{}
		var present bool
		if m.Source != "" {
			value, present = record[m.Source]
		}
		if !present || value == nil || value == "" {
			if m.Default != nil {
				out[m.Target] = m.Default
			}
			continue
		}

		if m.Convert != "" {
			converted, err := converters[m.Convert](value)
			if err != nil {
				return nil, errors.Wrapf(err, errors.CodeTransformFailed, "field %s: conversion %s failed", m.Target, m.Convert)
			}
			value = converted
		}
		out[m.Target] = value
	}

	return out, nil
}

// ApplyAll transforms a record slice, failing on the first bad record with
// its index in the error context.
func (e *Engine) ApplyAll(records []map[string]interface{}) ([]map[string]interface{}, error) {
	out := make([]map[string]interface{}, 0, len(records))
	for i, rec := range records {
		mapped, err := e.Apply(rec)
		if err != nil {
			if coded, ok := err.(*errors.Error); ok {
				return nil, coded.WithContext("record_index", i)
			}
			return nil, err
		}
		out = append(out, mapped)
	}
	return out, nil
}

// --- Conversions ---

// dateLayouts are tried in order when coercing to a date.
var dateLayouts = []string{
	"2006-01-02",
	"20060102",
	"02.01.2006",
	"01/02/2006",
	time.RFC3339,
}

func toDecimal(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		s := strings.TrimSpace(v)
		// European decimal comma.
		if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ",", ".")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as decimal", v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to decimal", value)
	}
}

func toDate(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case time.Time:
		return v.Format("2006-01-02"), nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format("2006-01-02"), nil
			}
		}
		return nil, fmt.Errorf("cannot parse %q as date", v)
	default:
		return nil, fmt.Errorf("cannot convert %T to date", value)
	}
}

func boolYN(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return "Y", nil
		}
		return "N", nil
	case string:
		switch strings.ToUpper(strings.TrimSpace(v)) {
		case "Y", "YES", "TRUE", "X", "1":
			return "Y", nil
		case "N", "NO", "FALSE", "", "0":
			return "N", nil
		}
		return nil, fmt.Errorf("cannot interpret %q as boolean", v)
	default:
		return nil, fmt.Errorf("cannot convert %T to Y/N flag", value)
	}
}

func padLeft10(value interface{}) (interface{}, error) {
	s := fmt.Sprintf("%v", value)
	if len(s) >= 10 {
		return s, nil
	}
	return strings.Repeat("0", 10-len(s)) + s, nil
}

func toUpperCase(value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("cannot convert %T to upper case", value)
	}
	return strings.ToUpper(s), nil
}
