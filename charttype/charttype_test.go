package charttype

import (
	"testing"

	"github.com/deckflow/deckflow-go/deckflow"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		key       string
		narrative string
		want      deckflow.ChartCategory
	}{
		{"monthly sales year over year", "", deckflow.CategoryBar},
		{"monthly sales over time", "steady growth", deckflow.CategoryBar},
		{"orders by product type (i.e. pay in 3, pay in 4)", "", deckflow.CategoryStackedBar},
		{"monthly orders by user type", "", deckflow.CategoryStackedBar},
		{"AOV", "trending upward", deckflow.CategoryLine},
		{"AOV by product type (i.e. pay in 3, pay in 4)", "", deckflow.CategoryStackedBar},
		{"scalapay users demographic", "", deckflow.CategoryPie},
		{"scalapay users demographic in percentages", "", deckflow.CategoryPie},
		{"something entirely unknown", "", deckflow.CategoryBar},
	}
	for _, tt := range tests {
		if got := Classify(tt.key, tt.narrative); got != tt.want {
			t.Errorf("Classify(%q, %q) = %v, want %v", tt.key, tt.narrative, got, tt.want)
		}
	}
}

func TestClassifyAOVScenario(t *testing.T) {
	// Bare "AOV" with an upward-trend narrative must resolve to a line
	// chart, not the bar default.
	if got := Classify("AOV", "trending upward"); got != deckflow.CategoryLine {
		t.Fatalf("Classify(AOV) = %v, want line", got)
	}
}

func TestClassifyDeclarationOrderBreaksTies(t *testing.T) {
	// Matches both yearly_comparison and sales patterns; the earlier
	// rule must win.
	style, cat := ClassifyWithStyle("sales year over year by product type", "")
	if style != "yearly_comparison" || cat != deckflow.CategoryBar {
		t.Errorf("got (%q, %v), want (yearly_comparison, bar)", style, cat)
	}
}

func TestDetectHint(t *testing.T) {
	tests := []struct {
		token        string
		wantHint     string
		wantPriority int
	}{
		{"monthly_sales_yoy_chart", "monthly_sales_yoy", 10},
		{"monthly-sales-over-time", "monthly_sales_trend", 9},
		{"aov_chart", "aov", 7},
		{"sales_chart", "sales_chart", 3},
		{"my_graph", "generic_chart", 1},
		{"title_text", "", 0},
	}
	for _, tt := range tests {
		hint, prio := DetectHint(tt.token)
		if hint != tt.wantHint || prio != tt.wantPriority {
			t.Errorf("DetectHint(%q) = (%q, %d), want (%q, %d)",
				tt.token, hint, prio, tt.wantHint, tt.wantPriority)
		}
	}
}

func TestDetectHintSpecificBeatsGeneric(t *testing.T) {
	// A token matching both the yoy and the generic sales patterns must
	// report the higher-priority hint.
	hint, prio := DetectHint("sales year over year chart")
	if hint != "monthly_sales_yoy" || prio != 10 {
		t.Errorf("got (%q, %d), want (monthly_sales_yoy, 10)", hint, prio)
	}
}
