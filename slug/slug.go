// Package slug derives canonical token slugs from free-text metric keys
// and binds them to the slug set discovered in a template.
//
// Resolution is pure given its inputs: a known-mapping table for
// historically problematic keys, generic normalization, then similarity
// matching against the template's slug set with a fixed threshold. A key
// that clears none of these still returns its generated slug; the caller
// treats that as best effort, not as an error.
package slug

import (
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxLength bounds generated slugs. Truncation keeps whole
// hyphen-delimited segments rather than cutting mid-word.
const MaxLength = 60

// SimilarityThreshold is the minimum ratio for a fuzzy template match.
const SimilarityThreshold = 0.7

// KnownMappings pins slugs for keys whose generic normalization is known
// to miss the template's actual token, usually because the template
// authoring tool truncated differently.
var KnownMappings = map[string]string{
	"scalapay users demographic in percentages":        "scalapay-users-demographic-in-percentage",
	"monthly sales over time":                          "monthly-sales-over-time",
	"monthly sales year over year":                     "monthly-sales-over-time",
	"monthly sales by product type over time":          "monthly-sales-by-product-type-over-time",
	"orders by product type (i.e. pay in 3, pay in 4)": "orders-by-product-type-i-e-pay-in-3-pay",
	"AOV by product type (i.e. pay in 3, pay in 4)":    "aov-by-product-type-i-e-pay-in-3-pay-in",
	"monthly orders by user type":                      "monthly-orders-by-user-type",
	"AOV":                                              "aov",
}

// FallbackTemplateSlugs is the static slug set used when placeholder
// discovery is unavailable.
var FallbackTemplateSlugs = []string{
	"monthly-sales-over-time",
	"monthly_sales",
	"monthly_sales_yoy",
	"monthly-orders-by-user-type",
	"monthly_orders_by_user_type",
	"orders-by-product-type-i-e-pay-in-3-pay",
	"orders_by_product_type_i_e_pay_in_3_pay_in_4",
	"scalapay-users-demographic-in-percentage",
	"scalapay_users_demographic_in_percentages",
	"aov",
	"average_item",
	"aov-by-product-type-i-e-pay-in-3-pay-in",
	"aov_by_product_type_i_e_pay_in_3_pay_in_4",
}

// Generate normalizes a free-text key into slug form: ASCII fold,
// lowercase, parentheses/commas/periods stripped, spaces to hyphens,
// repeated hyphens collapsed, truncated to MaxLength. An empty result
// becomes "section".
func Generate(s string) string {
	folded := make([]rune, 0, len(s))
	for _, r := range norm.NFKD.String(s) {
		if r < 128 {
			folded = append(folded, r)
		}
	}
	out := strings.ToLower(strings.TrimSpace(string(folded)))

	out = strings.NewReplacer("(", "", ")", "", ",", "", ".", "").Replace(out)
	out = strings.ReplaceAll(out, " ", "-")

	var b strings.Builder
	for _, r := range out {
		if unicode.IsLower(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	out = b.String()
	for strings.Contains(out, "--") {
		out = strings.ReplaceAll(out, "--", "-")
	}
	out = strings.Trim(out, "-")

	if len(out) > MaxLength {
		parts := strings.Split(out, "-")
		result := ""
		for _, part := range parts {
			if result == "" {
				if len(part) <= MaxLength {
					result = part
					continue
				}
				break
			}
			if len(result)+1+len(part) <= MaxLength {
				result = result + "-" + part
			} else {
				break
			}
		}
		if result != "" {
			out = result
		} else {
			out = out[:MaxLength]
		}
	}

	if out == "" {
		return "section"
	}
	return out
}

// Similarity computes a ratio in [0, 1] over the two strings' matching
// character blocks, 1 meaning identical.
func Similarity(a, b string) float64 {
	if len(a)+len(b) == 0 {
		return 1
	}
	matched := matchingBlocks(a, b)
	return 2 * float64(matched) / float64(len(a)+len(b))
}

// matchingBlocks totals matched characters by recursively finding the
// longest common substring and matching around it.
func matchingBlocks(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingBlocks(a[:ai], b[:bi])
	total += matchingBlocks(a[ai+size:], b[bi+size:])
	return total
}

func longestCommonSubstring(a, b string) (ai, bi, size int) {
	lengths := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prev := 0
		for j := 1; j <= len(b); j++ {
			cur := lengths[j]
			if a[i-1] == b[j-1] {
				lengths[j] = prev + 1
				if lengths[j] > size {
					size = lengths[j]
					ai = i - size
					bi = j - size
				}
			} else {
				lengths[j] = 0
			}
			prev = cur
		}
	}
	return ai, bi, size
}

// BestMatch returns the known slug most similar to generated, or false
// when no candidate clears the threshold.
func BestMatch(generated string, known []string, threshold float64) (string, bool) {
	best := ""
	bestRatio := 0.0
	for _, candidate := range known {
		if r := Similarity(generated, candidate); r > bestRatio {
			bestRatio = r
			best = candidate
		}
	}
	if bestRatio >= threshold {
		return best, true
	}
	return "", false
}

// Resolver binds metric keys to a template's slug set.
type Resolver struct {
	known    []string
	knownSet map[string]struct{}
	logger   *slog.Logger
}

// NewResolver builds a resolver over the template slugs from the latest
// discovery scan. An empty set falls back to the static offline list.
func NewResolver(templateSlugs []string, logger *slog.Logger) *Resolver {
	if len(templateSlugs) == 0 {
		templateSlugs = FallbackTemplateSlugs
	}
	if logger == nil {
		logger = slog.Default()
	}
	set := make(map[string]struct{}, len(templateSlugs))
	for _, s := range templateSlugs {
		set[s] = struct{}{}
	}
	return &Resolver{known: templateSlugs, knownSet: set, logger: logger}
}

// Resolve derives the slug for a metric key, preferring the known
// mapping, then a validated generated slug, then the closest template
// match, and finally the generated slug unmodified with a warning.
func (r *Resolver) Resolve(metricKey string) string {
	if mapped, ok := KnownMappings[metricKey]; ok {
		if _, present := r.knownSet[mapped]; present {
			return mapped
		}
	}

	generated := Generate(metricKey)
	if _, present := r.knownSet[generated]; present {
		return generated
	}

	if match, ok := BestMatch(generated, r.known, SimilarityThreshold); ok {
		r.logger.Warn("slug resolved by similarity",
			"metric_key", metricKey, "generated", generated, "matched", match)
		return match
	}

	r.logger.Warn("no template match for slug, using generated",
		"metric_key", metricKey, "generated", generated)
	return generated
}

// Resolve is the package-level convenience over a one-shot resolver.
func Resolve(metricKey string, knownSlugs []string) string {
	return NewResolver(knownSlugs, nil).Resolve(metricKey)
}
