package slug

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"monthly sales over time", "monthly-sales-over-time"},
		{"AOV", "aov"},
		{"orders by product type (i.e. pay in 3, pay in 4)", "orders-by-product-type-ie-pay-in-3-pay-in-4"},
		{"Caffè Latte Sales", "caffe-latte-sales"},
		{"  spaced   out  ", "spaced-out"},
		{"", "section"},
		{"!!!", "section"},
	}
	for _, tt := range tests {
		if got := Generate(tt.in); got != tt.want {
			t.Errorf("Generate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerateTruncatesOnSegmentBoundary(t *testing.T) {
	long := strings.Repeat("segment ", 12) + "tail"
	got := Generate(long)
	if len(got) > MaxLength {
		t.Fatalf("len(%q) = %d, want <= %d", got, len(got), MaxLength)
	}
	if strings.HasSuffix(got, "-") || strings.Contains(got, "segmen-") {
		t.Errorf("truncation cut mid-segment: %q", got)
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("aov", "aov"); got != 1 {
		t.Errorf("identical strings ratio = %v, want 1", got)
	}
	if got := Similarity("abc", "xyz"); got != 0 {
		t.Errorf("disjoint strings ratio = %v, want 0", got)
	}
	got := Similarity("monthly-sales", "monthly-sales-over-time")
	if got < 0.7 {
		t.Errorf("prefix ratio = %v, want >= 0.7", got)
	}
}

func TestBestMatch(t *testing.T) {
	known := []string{"aov", "monthly-sales-over-time", "monthly-orders-by-user-type"}
	match, ok := BestMatch("monthly-sales-over-tim", known, SimilarityThreshold)
	if !ok || match != "monthly-sales-over-time" {
		t.Errorf("BestMatch = (%q, %v), want (monthly-sales-over-time, true)", match, ok)
	}
	if _, ok := BestMatch("zzzz", known, SimilarityThreshold); ok {
		t.Error("BestMatch should reject candidates below the threshold")
	}
}

func TestResolveKnownMapping(t *testing.T) {
	r := NewResolver([]string{"monthly-sales-over-time", "aov"}, nil)
	if got := r.Resolve("monthly sales year over year"); got != "monthly-sales-over-time" {
		t.Errorf("Resolve = %q, want monthly-sales-over-time", got)
	}
	if got := r.Resolve("AOV"); got != "aov" {
		t.Errorf("Resolve(AOV) = %q, want aov", got)
	}
}

func TestResolveUnknownKeyReturnsGenerated(t *testing.T) {
	r := NewResolver([]string{"aov"}, nil)
	if got := r.Resolve("completely unrelated metric"); got != "completely-unrelated-metric" {
		t.Errorf("Resolve = %q, want the generated slug", got)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	r := NewResolver(FallbackTemplateSlugs, nil)
	keys := []string{
		"AOV",
		"monthly sales over time",
		"orders by product type (i.e. pay in 3, pay in 4)",
		"some new metric nobody mapped",
	}
	for _, key := range keys {
		first := r.Resolve(key)
		second := r.Resolve(key)
		if first != second {
			t.Errorf("Resolve(%q) not stable: %q then %q", key, first, second)
		}
	}
}

func TestEmptyKnownSetUsesFallback(t *testing.T) {
	r := NewResolver(nil, nil)
	if got := r.Resolve("AOV"); got != "aov" {
		t.Errorf("Resolve(AOV) with fallback slugs = %q, want aov", got)
	}
}
