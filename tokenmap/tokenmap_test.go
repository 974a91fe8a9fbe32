package tokenmap

import (
	"testing"

	"github.com/deckflow/deckflow-go/charttype"
	"github.com/deckflow/deckflow-go/deckflow"
)

func chartPlaceholder(objectID, slug string) deckflow.Placeholder {
	hint, prio := charttype.DetectHint(slug)
	return deckflow.Placeholder{
		ObjectID:    objectID,
		ContainerID: "slide-1",
		RawToken:    "{{" + slug + "_chart}}",
		Slug:        slug,
		Kind:        deckflow.KindChart,
		TypeHint:    hint,
		Priority:    prio,
	}
}

func TestMapExactSlugs(t *testing.T) {
	// Template slugs {aov, monthly-sales-over-time}; two keys bind
	// exactly, the unknown key maps to nil.
	m := NewMapper(nil)
	placeholders := []deckflow.Placeholder{
		chartPlaceholder("el-1", "aov"),
		chartPlaceholder("el-2", "monthly-sales-over-time"),
	}
	got := m.Map([]string{"AOV", "monthly sales over time", "unknown metric"}, placeholders)

	if got["AOV"] == nil || got["AOV"].ObjectID != "el-1" {
		t.Errorf("AOV mapped to %+v, want el-1", got["AOV"])
	}
	if got["monthly sales over time"] == nil || got["monthly sales over time"].ObjectID != "el-2" {
		t.Errorf("monthly sales mapped to %+v, want el-2", got["monthly sales over time"])
	}
	if got["unknown metric"] != nil {
		t.Errorf("unknown metric mapped to %+v, want nil", got["unknown metric"])
	}
}

func TestMapAtMostOnePlaceholder(t *testing.T) {
	m := NewMapper(nil)
	placeholders := []deckflow.Placeholder{
		chartPlaceholder("el-1", "monthly-sales-over-time"),
	}
	// Both keys resolve to the same template slug; only one may win.
	got := m.Map([]string{"monthly sales over time", "monthly sales year over year"}, placeholders)

	seen := make(map[string]int)
	for _, p := range got {
		if p != nil {
			seen[p.ObjectID]++
		}
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("placeholder %s consumed %d times", id, n)
		}
	}
	mapped := 0
	for _, p := range got {
		if p != nil {
			mapped++
		}
	}
	if mapped != 1 {
		t.Errorf("%d keys mapped, want exactly 1", mapped)
	}
}

func TestMapTypeHintEquivalence(t *testing.T) {
	m := NewMapper(nil)
	// Placeholder slug won't match the key's slug, but its hint sits in
	// the sales equivalence group.
	placeholders := []deckflow.Placeholder{
		chartPlaceholder("el-1", "sales_chart"),
	}
	got := m.Map([]string{"monthly sales year over year"}, placeholders)
	if got["monthly sales year over year"] == nil {
		t.Fatal("expected a hint-equivalent match")
	}
	if got["monthly sales year over year"].ObjectID != "el-1" {
		t.Errorf("mapped to %s, want el-1", got["monthly sales year over year"].ObjectID)
	}
}

func TestMapSpecificKeysWinOverGeneric(t *testing.T) {
	m := NewMapper(nil)
	placeholders := []deckflow.Placeholder{
		chartPlaceholder("el-yoy", "monthly_sales_yoy"),
		chartPlaceholder("el-generic", "sales_chart"),
	}
	// Declared generic-first: the mapper must still give the specific
	// key the specific placeholder.
	got := m.Map([]string{"sales summary", "monthly sales year over year"}, placeholders)

	yoy := got["monthly sales year over year"]
	if yoy == nil || yoy.ObjectID != "el-yoy" {
		t.Errorf("specific key mapped to %+v, want el-yoy", yoy)
	}
	generic := got["sales summary"]
	if generic == nil || generic.ObjectID != "el-generic" {
		t.Errorf("generic key mapped to %+v, want el-generic", generic)
	}
}

func TestMapIgnoresNonChartPlaceholders(t *testing.T) {
	m := NewMapper(nil)
	placeholders := []deckflow.Placeholder{
		{ObjectID: "el-1", Slug: "aov", Kind: deckflow.KindText, RawToken: "{{aov_title}}"},
	}
	got := m.Map([]string{"AOV"}, placeholders)
	if got["AOV"] != nil {
		t.Errorf("AOV mapped to text placeholder %+v", got["AOV"])
	}
}

func TestMapLastResortFallback(t *testing.T) {
	m := NewMapper(nil)
	placeholders := []deckflow.Placeholder{
		chartPlaceholder("el-1", "revenue_graph"),
	}
	got := m.Map([]string{"completely novel metric"}, placeholders)
	if got["completely novel metric"] == nil {
		t.Error("a remaining chart placeholder should serve as last resort")
	}
}
