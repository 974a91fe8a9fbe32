// Package discovery scans a target document for {{...}} placeholder
// tokens and classifies each one for the mapping phase.
//
// A scan walks every container exactly once. When the primary document
// API is unavailable the scanner degrades to a legacy client, and when
// that also fails it returns an empty list so the caller proceeds with
// zero mappings instead of aborting the run.
package discovery

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/deckflow/deckflow-go/charttype"
	"github.com/deckflow/deckflow-go/deckflow"
)

// tokenPattern matches placeholder tokens as they appear in text runs.
var tokenPattern = regexp.MustCompile(`\{\{[^}]+\}\}`)

// suffixPattern splits a token's slug from its kind suffix, e.g.
// "{{aov_chart}}" -> ("aov", "chart").
var suffixPattern = regexp.MustCompile(`^\{\{(.+)_(title|paragraph|chart)\}\}$`)

// Keyword tables for kind classification, checked in order: chart, then
// text, then image. First matching category wins.
var (
	chartKeywords = []string{"chart", "graph", "plot", "visualization", "aov", "sales", "orders", "demographic"}
	textKeywords  = []string{"title", "paragraph", "text", "content", "description"}
	imageKeywords = []string{"image", "img", "picture", "photo"}
)

// Scanner discovers placeholders through a primary document API with a
// legacy client fallback.
type Scanner struct {
	primary deckflow.DocumentAPI
	legacy  deckflow.DocumentAPI
	logger  *slog.Logger
}

// NewScanner builds a scanner. The legacy API may be nil when no
// fallback client exists.
func NewScanner(primary, legacy deckflow.DocumentAPI, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{primary: primary, legacy: legacy, logger: logger}
}

// Discover scans the document and returns every placeholder found. A
// total scan failure yields an empty slice, never an error.
func (s *Scanner) Discover(ctx context.Context, documentID string) []deckflow.Placeholder {
	doc, err := s.primary.Document(ctx, documentID)
	if err != nil {
		s.logger.Warn("primary placeholder scan failed, trying legacy client",
			"document_id", documentID, "error", err)
		if s.legacy != nil {
			doc, err = s.legacy.Document(ctx, documentID)
		}
		if err != nil || doc == nil {
			s.logger.Warn("placeholder discovery unavailable, proceeding with zero mappings",
				"document_id", documentID, "error", err)
			return nil
		}
	}
	return Extract(doc)
}

// Extract pulls placeholders out of an already-fetched document tree.
func Extract(doc *deckflow.Document) []deckflow.Placeholder {
	var out []deckflow.Placeholder
	seen := make(map[string]struct{})

	for _, container := range doc.Containers {
		for _, el := range container.Elements {
			if el.Text == "" {
				continue
			}
			for _, token := range tokenPattern.FindAllString(el.Text, -1) {
				// One placeholder per token occurrence per element.
				dedupeKey := el.ObjectID + "|" + token
				if _, dup := seen[dedupeKey]; dup {
					continue
				}
				seen[dedupeKey] = struct{}{}

				p := classify(token)
				p.ObjectID = el.ObjectID
				p.ContainerID = container.ID
				p.Size = el.Size
				p.Transform = el.Transform
				out = append(out, p)
			}
		}
	}
	return out
}

// classify fills the token-derived fields of a placeholder.
func classify(token string) deckflow.Placeholder {
	p := deckflow.Placeholder{RawToken: token, Kind: deckflow.KindUnknown}

	inner := strings.Trim(token, "{}")
	p.Slug = inner

	// An explicit kind suffix ({{slug_title}}, {{slug_paragraph}},
	// {{slug_chart}}) is authoritative; keyword classification only
	// handles tokens outside that grammar.
	if m := suffixPattern.FindStringSubmatch(token); m != nil {
		p.Slug = m[1]
		if m[2] == "chart" {
			p.Kind = deckflow.KindChart
		} else {
			p.Kind = deckflow.KindText
		}
	} else {
		lower := strings.ToLower(inner)
		switch {
		case containsAny(lower, chartKeywords):
			p.Kind = deckflow.KindChart
		case containsAny(lower, textKeywords):
			p.Kind = deckflow.KindText
		case containsAny(lower, imageKeywords):
			p.Kind = deckflow.KindImage
		}
	}

	if p.Kind == deckflow.KindChart {
		p.TypeHint, p.Priority = charttype.DetectHint(inner)
	}
	return p
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// Slugs returns the deduplicated slug set of a scan, the known-slug
// input for the slug resolver.
func Slugs(placeholders []deckflow.Placeholder) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range placeholders {
		if _, dup := seen[p.Slug]; dup {
			continue
		}
		seen[p.Slug] = struct{}{}
		out = append(out, p.Slug)
	}
	return out
}
