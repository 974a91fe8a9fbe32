// Package schema declares, per metric key, the expected data shape,
// validation rules, size bounds, and a static fallback payload, and
// validates agent responses against them.
//
// Validation runs every rule independently so all errors surface
// together; failures are reported as string lists, never panics. A
// failing payload gets a best-effort correction (fallback fill plus
// numeric coercion) which is not guaranteed to validate.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/deckflow/deckflow-go/deckflow"
)

// DataFormat names the expected shape of structured_data.
type DataFormat string

const (
	// FormatMonthYearValue: {"Jan": {"2023": 45, "2024": 67}}
	FormatMonthYearValue DataFormat = "month_year_value"
	// FormatMonthCategories: {"Oct-22": {"Network": 162, "Returning": 18}}
	FormatMonthCategories DataFormat = "month_categories"
	// FormatCategoryPercentage: {"18-24": 2, "25-34": 6}
	FormatCategoryPercentage DataFormat = "category_percentage"
	// FormatTimeValue: {"2023-01": 45.6, "2023-02": 52.1}
	FormatTimeValue DataFormat = "time_value"
	// FormatNestedCategories: {"Age %": {"18-24": 2}, "Gender %": {"M": 3}}
	FormatNestedCategories DataFormat = "nested_categories"
)

// SizeBounds constrain the cardinality of the primary data mapping.
type SizeBounds struct {
	Min int
	Max int
}

// DataRequirement is the immutable specification for one metric key.
type DataRequirement struct {
	Key                 string
	Category            deckflow.ChartCategory
	Format              DataFormat
	RequiredFields      []string
	Rules               []Rule
	ExpectedSize        SizeBounds
	TransformationHints []string
	Fallback            map[string]interface{}
}

// Result carries the outcome of one validation call.
type Result struct {
	Valid     bool
	Errors    []string
	Corrected map[string]interface{}
}

// Registry holds the per-metric-key requirements.
type Registry struct {
	requirements map[string]*DataRequirement
}

// NewRegistry returns a registry loaded with the built-in requirements.
func NewRegistry() *Registry {
	r := &Registry{requirements: make(map[string]*DataRequirement)}
	for _, req := range builtinRequirements() {
		r.requirements[req.Key] = req
	}
	return r
}

// Requirement looks up the specification for a metric key.
func (r *Registry) Requirement(key string) (*DataRequirement, bool) {
	req, ok := r.requirements[key]
	return req, ok
}

// SupportedKeys lists every registered metric key.
func (r *Registry) SupportedKeys() []string {
	keys := make([]string, 0, len(r.requirements))
	for k := range r.requirements {
		keys = append(keys, k)
	}
	return keys
}

// ChartCategory returns the expected chart family for a key.
func (r *Registry) ChartCategory(key string) (deckflow.ChartCategory, bool) {
	req, ok := r.requirements[key]
	if !ok {
		return "", false
	}
	return req.Category, true
}

// Validate checks a payload against the key's requirement. Unknown keys
// fail with a single "Unknown data type" error and no correction. On
// rule failures the result carries a best-effort corrected payload.
func (r *Registry) Validate(key string, payload map[string]interface{}) Result {
	req, ok := r.requirements[key]
	if !ok {
		return Result{Valid: false, Errors: []string{fmt.Sprintf("Unknown data type: %s", key)}}
	}

	errors := req.validate(payload)
	if len(errors) > 0 {
		return Result{Valid: false, Errors: errors, Corrected: req.correct(payload)}
	}
	return Result{Valid: true, Corrected: payload}
}

// validate runs required-field, rule, and size checks with no
// short-circuiting.
func (req *DataRequirement) validate(payload map[string]interface{}) []string {
	var errors []string

	for _, field := range req.RequiredFields {
		if _, ok := payload[field]; !ok {
			errors = append(errors, fmt.Sprintf("Missing required field: %s", field))
		}
	}

	for _, rule := range req.Rules {
		if ok, msg := rule.Validate(payload); !ok {
			errors = append(errors, msg)
		}
	}

	if data, ok := payload["structured_data"].(map[string]interface{}); ok {
		count := len(data)
		if req.ExpectedSize.Min > 0 && count < req.ExpectedSize.Min {
			errors = append(errors, fmt.Sprintf(
				"Insufficient data entries: got %d, need at least %d", count, req.ExpectedSize.Min))
		}
		if req.ExpectedSize.Max > 0 && count > req.ExpectedSize.Max {
			errors = append(errors, fmt.Sprintf(
				"Too many data entries: got %d, maximum %d", count, req.ExpectedSize.Max))
		}
	}

	return errors
}

// correct fills missing required fields from the fallback payload and
// coerces string numerics recursively. Best effort only.
func (req *DataRequirement) correct(payload map[string]interface{}) map[string]interface{} {
	corrected := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		corrected[k] = v
	}

	for _, field := range req.RequiredFields {
		if _, ok := corrected[field]; !ok {
			if fb, ok := req.Fallback[field]; ok {
				corrected[field] = fb
			}
		}
	}

	if data, ok := corrected["structured_data"]; ok {
		corrected["structured_data"] = coerceNumeric(data)
	}

	return corrected
}

// coerceNumeric converts string-typed numbers to ints (preferred) or
// floats through arbitrarily nested maps and slices.
func coerceNumeric(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = coerceNumeric(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = coerceNumeric(val)
		}
		return out
	case string:
		if !strings.Contains(v, ".") {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			return v
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		return v
	default:
		return data
	}
}
