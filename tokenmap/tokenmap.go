// Package tokenmap pairs metric keys with the chart placeholders
// discovered in a target document.
//
// Matching runs most specific metric first so a generic key cannot
// steal the placeholder a specific key needs. A consumed placeholder
// leaves the candidate pool; a key that finds nothing maps to nil and
// is logged as a miss, never raised as a failure.
package tokenmap

import (
	"log/slog"
	"sort"

	"github.com/deckflow/deckflow-go/charttype"
	"github.com/deckflow/deckflow-go/deckflow"
	"github.com/deckflow/deckflow-go/discovery"
	"github.com/deckflow/deckflow-go/slug"
)

// equivalenceGroups lists the type hints that may stand in for each
// other when no exact slug match exists.
var equivalenceGroups = [][]string{
	{"monthly_sales", "sales_chart", "monthly_sales_trend", "monthly_sales_yoy"},
	{"aov", "average_order_value", "aov_by_product"},
	{"monthly_orders", "orders_chart", "orders_by_user_type", "orders_by_product_type"},
	{"demographics", "demographics_percentage", "user_demographics", "demographic_chart"},
}

// groupIndex maps each hint to its group id.
var groupIndex = func() map[string]int {
	idx := make(map[string]int)
	for i, group := range equivalenceGroups {
		for _, hint := range group {
			idx[hint] = i
		}
	}
	return idx
}()

// compatible reports whether two hints belong to the same equivalence
// group.
func compatible(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	ga, okA := groupIndex[a]
	gb, okB := groupIndex[b]
	return okA && okB && ga == gb
}

// Mapper binds metric keys to placeholders.
type Mapper struct {
	logger *slog.Logger
}

// NewMapper builds a mapper.
func NewMapper(logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{logger: logger}
}

// Map resolves each metric key to at most one placeholder. The result
// has an entry for every input key; misses carry nil. No placeholder
// object id is ever used twice.
func (m *Mapper) Map(metricKeys []string, placeholders []deckflow.Placeholder) map[string]*deckflow.Placeholder {
	resolver := slug.NewResolver(discovery.Slugs(placeholders), m.logger)

	// Candidate pool: chart placeholders only, unconsumed.
	pool := make([]*deckflow.Placeholder, 0, len(placeholders))
	for i := range placeholders {
		if placeholders[i].Kind == deckflow.KindChart {
			pool = append(pool, &placeholders[i])
		}
	}
	used := make(map[string]struct{})
	available := func(p *deckflow.Placeholder) bool {
		_, taken := used[p.ObjectID]
		return !taken
	}

	// Most specific metric keys first.
	ordered := make([]string, len(metricKeys))
	copy(ordered, metricKeys)
	sort.SliceStable(ordered, func(i, j int) bool {
		_, pi := charttype.DetectHint(ordered[i])
		_, pj := charttype.DetectHint(ordered[j])
		return pi > pj
	})

	result := make(map[string]*deckflow.Placeholder, len(metricKeys))
	for _, key := range ordered {
		match := m.matchOne(key, resolver, pool, available)
		if match != nil {
			used[match.ObjectID] = struct{}{}
		} else {
			m.logger.Warn("no placeholder available for metric", "metric_key", key)
		}
		result[key] = match
	}
	return result
}

func (m *Mapper) matchOne(
	key string,
	resolver *slug.Resolver,
	pool []*deckflow.Placeholder,
	available func(*deckflow.Placeholder) bool,
) *deckflow.Placeholder {
	keySlug := resolver.Resolve(key)

	// Exact slug equality.
	for _, p := range pool {
		if available(p) && p.Slug == keySlug {
			return p
		}
	}

	// Type-hint compatibility, highest placeholder priority first.
	keyHint, _ := charttype.DetectHint(key)
	var best *deckflow.Placeholder
	for _, p := range pool {
		if !available(p) || !compatible(keyHint, p.TypeHint) {
			continue
		}
		if best == nil || p.Priority > best.Priority {
			best = p
		}
	}
	if best != nil {
		m.logger.Debug("metric matched placeholder by type hint",
			"metric_key", key, "hint", keyHint, "placeholder", best.RawToken)
		return best
	}

	// Last resort: the highest-priority remaining chart placeholder,
	// but only when the key produced no hint-specific candidate at all.
	for _, p := range pool {
		if !available(p) {
			continue
		}
		if best == nil || p.Priority > best.Priority {
			best = p
		}
	}
	if best != nil {
		m.logger.Warn("metric falling back to generic chart placeholder",
			"metric_key", key, "placeholder", best.RawToken)
	}
	return best
}
