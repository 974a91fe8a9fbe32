// Package charttype infers a chart category and a placeholder type hint
// from a metric key and its narrative text.
//
// Matching policy lives in ordered rule tables rather than control flow
// so it can be tested and extended without touching the classifier.
package charttype

import (
	"regexp"
	"strings"

	"github.com/deckflow/deckflow-go/deckflow"
)

// Rule is one classification pattern. Rules are evaluated in declaration
// order against the lowercase concatenation of key and narrative; the
// first match wins.
type Rule struct {
	Name     string
	Pattern  *regexp.Regexp
	Category deckflow.ChartCategory
	StyleKey string
}

// ContentRules is the ordered classification table, most specific first.
var ContentRules = []Rule{
	{
		Name:     "yearly_comparison",
		Pattern:  regexp.MustCompile(`year[\s-]*over[\s-]*year|yoy`),
		Category: deckflow.CategoryBar,
		StyleKey: "yearly_comparison",
	},
	{
		Name:     "by_product_type",
		Pattern:  regexp.MustCompile(`by\s+product\s+type|product\s+type`),
		Category: deckflow.CategoryStackedBar,
		StyleKey: "product_breakdown",
	},
	{
		Name:     "by_user_type",
		Pattern:  regexp.MustCompile(`by\s+user\s+type|user\s+type`),
		Category: deckflow.CategoryStackedBar,
		StyleKey: "user_breakdown",
	},
	{
		Name:     "aov_trend",
		Pattern:  regexp.MustCompile(`\baov\b|average\s+order\s+value`),
		Category: deckflow.CategoryLine,
		StyleKey: "aov_trend",
	},
	{
		Name:     "demographics",
		Pattern:  regexp.MustCompile(`demographic|percentage`),
		Category: deckflow.CategoryPie,
		StyleKey: "demographics",
	},
}

// DefaultCategory is used when no rule matches.
const DefaultCategory = deckflow.CategoryBar

// Classify infers the chart category for a metric. The narrative may be
// empty; ties between rules are broken by declaration order.
func Classify(metricKey, narrative string) deckflow.ChartCategory {
	_, cat := ClassifyWithStyle(metricKey, narrative)
	return cat
}

// ClassifyWithStyle returns the matched rule's style key together with
// the category, for layout preset selection.
func ClassifyWithStyle(metricKey, narrative string) (string, deckflow.ChartCategory) {
	text := strings.ToLower(metricKey + " " + narrative)
	for _, r := range ContentRules {
		if r.Pattern.MatchString(text) {
			return r.StyleKey, r.Category
		}
	}
	return "default", DefaultCategory
}

// HintRule scores a placeholder token against a chart pattern. Higher
// priority means a more specific pattern.
type HintRule struct {
	Hint     string
	Pattern  *regexp.Regexp
	Priority int
}

// HintRules is the ordered type-hint table. Specific metric patterns
// outrank bare keyword patterns so "monthly sales year over year" never
// loses its placeholder to a generic "sales" token.
var HintRules = []HintRule{
	{"monthly_sales_yoy", regexp.MustCompile(`monthly[\s_-]*sales[\s_-]*(year|yoy)|year[\s_-]*over[\s_-]*year`), 10},
	{"monthly_sales_trend", regexp.MustCompile(`monthly[\s_-]*sales[\s_-]*(over[\s_-]*time|trend)`), 9},
	{"orders_by_user_type", regexp.MustCompile(`orders?[\s_-]*by[\s_-]*user|user[\s_-]*type`), 8},
	// Plain substring: tokens arrive underscore-joined ("aov_chart"),
	// which defeats \b word boundaries.
	{"aov", regexp.MustCompile(`aov|average[\s_-]*order[\s_-]*value`), 7},
	{"demographics_percentage", regexp.MustCompile(`demographic.*percent`), 6},
	{"demographics", regexp.MustCompile(`demographic`), 5},
	{"orders_by_product_type", regexp.MustCompile(`orders?[\s_-]*by[\s_-]*product|product[\s_-]*type`), 4},
	{"sales_chart", regexp.MustCompile(`sales`), 3},
	{"orders_chart", regexp.MustCompile(`orders?`), 2},
	{"generic_chart", regexp.MustCompile(`chart|graph|plot|visualization`), 1},
}

// DetectHint matches a placeholder token (or a metric key) against the
// hint table and returns the most specific hit. An empty hint with
// priority zero means no pattern matched.
func DetectHint(token string) (string, int) {
	text := strings.ToLower(token)
	best := ""
	bestPriority := 0
	for _, r := range HintRules {
		if r.Priority > bestPriority && r.Pattern.MatchString(text) {
			best = r.Hint
			bestPriority = r.Priority
		}
	}
	return best, bestPriority
}
