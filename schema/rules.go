package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// RuleType selects a validation predicate.
type RuleType string

const (
	RuleRequired RuleType = "required"
	RuleNumeric  RuleType = "numeric"
	RuleRange    RuleType = "range"
	RulePattern  RuleType = "pattern"
	RuleEnum     RuleType = "enum"
)

// Rule is a single predicate over a dotted field path within a payload.
// Rules never panic; a failing rule produces a human-readable message.
type Rule struct {
	FieldPath string
	Type      RuleType

	// Pattern is compiled at table construction for RulePattern rules.
	Pattern *regexp.Regexp
	// Min and Max bound RuleRange rules.
	Min, Max float64
	// Allowed lists RuleEnum values.
	Allowed []interface{}
}

// Required declares a required-field rule.
func Required(path string) Rule {
	return Rule{FieldPath: path, Type: RuleRequired}
}

// Numeric declares a numeric-type rule.
func Numeric(path string) Rule {
	return Rule{FieldPath: path, Type: RuleNumeric}
}

// Range declares an inclusive numeric bound.
func Range(path string, min, max float64) Rule {
	return Rule{FieldPath: path, Type: RuleRange, Min: min, Max: max}
}

// Pattern declares a regexp rule anchored at the value's start.
func Pattern(path, expr string) Rule {
	return Rule{FieldPath: path, Type: RulePattern, Pattern: regexp.MustCompile(expr)}
}

// Enum declares an allowed-values rule.
func Enum(path string, allowed ...interface{}) Rule {
	return Rule{FieldPath: path, Type: RuleEnum, Allowed: allowed}
}

// Validate evaluates the rule against a payload. The boolean is true
// when the rule passes; otherwise the string carries the error.
func (r Rule) Validate(data map[string]interface{}) (bool, string) {
	value := nestedValue(data, r.FieldPath)

	switch r.Type {
	case RuleRequired:
		if value == nil {
			return false, fmt.Sprintf("Required field missing: %s", r.FieldPath)
		}

	case RuleNumeric:
		if !isNumeric(value) {
			return false, fmt.Sprintf("Field %s must be numeric, got %T", r.FieldPath, value)
		}

	case RuleRange:
		n, ok := asFloat(value)
		if !ok || n < r.Min || n > r.Max {
			return false, fmt.Sprintf("Field %s must be between %v and %v", r.FieldPath, r.Min, r.Max)
		}

	case RulePattern:
		// Match at the start of the string, mirroring how the rule
		// tables were originally authored.
		s := fmt.Sprintf("%v", value)
		loc := r.Pattern.FindStringIndex(s)
		if loc == nil || loc[0] != 0 {
			return false, fmt.Sprintf("Field %s doesn't match pattern %s", r.FieldPath, r.Pattern)
		}

	case RuleEnum:
		for _, allowed := range r.Allowed {
			if value == allowed {
				return true, ""
			}
		}
		return false, fmt.Sprintf("Field %s must be one of %v", r.FieldPath, r.Allowed)
	}

	return true, ""
}

// nestedValue resolves a dot-separated path through nested maps,
// returning nil when any segment is absent.
func nestedValue(data map[string]interface{}, path string) interface{} {
	var current interface{} = data
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = m[key]
		if !ok {
			return nil
		}
	}
	return current
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return true
	}
	return false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
