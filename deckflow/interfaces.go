// Package deckflow defines the core types and interfaces shared by the
// deck-generation pipeline.
//
// The package is intentionally small: it holds the data model (metric
// results, placeholders, operation results), the document-mutation
// contract (DocumentAPI), and the typed errors the rest of the module
// reports. Everything else lives in the component packages (schema,
// slug, charttype, layout, discovery, tokenmap, engine, breaker, flags,
// monitor) which depend on this package and never on each other's
// internals.
package deckflow

import (
	"context"
)

// ChartCategory is the inferred chart family for a metric.
type ChartCategory string

const (
	CategoryBar        ChartCategory = "bar"
	CategoryStackedBar ChartCategory = "stacked_bar"
	CategoryLine       ChartCategory = "line"
	CategoryPie        ChartCategory = "pie"
)

// PlaceholderKind classifies what a template token expects to receive.
type PlaceholderKind string

const (
	KindChart   PlaceholderKind = "chart"
	KindText    PlaceholderKind = "text"
	KindImage   PlaceholderKind = "image"
	KindUnknown PlaceholderKind = "unknown"
)

// Placeholder is a {{...}} token discovered in a target document.
//
// Placeholders are rebuilt on every document scan and discarded once the
// mapping phase completes; they are never persisted.
type Placeholder struct {
	// ObjectID is the document-scoped identity of the element holding
	// the token.
	ObjectID string

	// ContainerID is the page or slide the element lives on.
	ContainerID string

	// RawToken is the full token text including braces, e.g.
	// "{{aov_chart}}".
	RawToken string

	// Slug is the token's inner text with any kind suffix stripped,
	// e.g. "aov" for "{{aov_chart}}".
	Slug string

	// Kind is the keyword-derived classification of the token.
	Kind PlaceholderKind

	// TypeHint is the inferred chart pattern name for chart-kind
	// placeholders ("monthly_sales_yoy", "aov", ...). Empty otherwise.
	TypeHint string

	// Priority is the specificity score of the matched pattern, used
	// for tie-breaking during mapping. Higher is more specific.
	Priority int

	// Size and Transform carry the element's current geometry when the
	// scan could read it. Nil otherwise.
	Size      *ElementSize
	Transform *ElementTransform
}

// ElementSize is an element's width and height in EMU.
type ElementSize struct {
	Width  int64
	Height int64
}

// ElementTransform is an element's affine placement on its page.
type ElementTransform struct {
	ScaleX     float64
	ScaleY     float64
	TranslateX int64
	TranslateY int64
	Unit       string
}

// MetricResult is one entry per requested metric key, produced by the
// upstream data agent and enriched by the chart agent.
type MetricResult struct {
	// Key is the free-text metric name, e.g. "monthly sales over time".
	Key string

	// Payload is the agent output, parsed but not yet validated. May be
	// malformed or partially present.
	Payload *PayloadView

	// ChartPath is the local path of the rendered chart image, set by
	// the chart agent after validation.
	ChartPath string

	// Errors accumulates per-key failures in order of occurrence.
	Errors []string
}

// TokenMapping pairs a metric key with the placeholder it will fill.
// A nil Placeholder records a miss, not an error.
type TokenMapping struct {
	MetricKey   string
	Placeholder *Placeholder
}

// ExecutionMode labels which pipeline produced a result.
type ExecutionMode string

const (
	ModeFast               ExecutionMode = "fast"
	ModeLegacy             ExecutionMode = "legacy"
	ModeSequentialFallback ExecutionMode = "sequential_fallback"
)

// OperationResult is returned by every document-mutation entry point.
//
// Batch callers rely on the Success flag and Errors list instead of
// raised errors so one unit's failure never stops the remaining work.
type OperationResult struct {
	Success          bool
	Mode             ExecutionMode
	Elapsed          float64 // seconds
	APICalls         int
	ObjectsProcessed int
	ContainersOK     int
	ContainersTotal  int
	Errors           []string
	FallbackUsed     bool
	FallbackReason   string
	CorrelationID    string
	Details          map[string]interface{}
}

// DocumentAPI is the contract against the target presentation service.
//
// Document returns the full container/element tree of a document.
// BatchUpdate applies an ordered list of typed mutation requests in a
// single call and returns one reply per request; the service guarantees
// requests within one call are applied in submission order.
type DocumentAPI interface {
	Document(ctx context.Context, documentID string) (*Document, error)
	BatchUpdate(ctx context.Context, documentID string, requests []Request) ([]Reply, error)
}

// Document is the read-side view of a presentation.
type Document struct {
	ID         string
	Title      string
	Containers []Container
}

// Container is one page/slide of a document.
type Container struct {
	ID       string
	Index    int
	Elements []Element
}

// Element is a shape or image on a container, with any text it holds.
type Element struct {
	ObjectID  string
	Text      string
	IsImage   bool
	Size      *ElementSize
	Transform *ElementTransform
}

// Request is one typed mutation operation. Exactly one field is set,
// mirroring the wire shape of the target API's batchUpdate call.
type Request struct {
	ReplaceAllText        *ReplaceAllTextRequest
	ReplaceShapeWithImage *ReplaceShapeWithImageRequest
	UpdateSize            *UpdateSizeRequest
	UpdateTransform       *UpdateTransformRequest
}

// ReplaceAllTextRequest replaces every occurrence of a token with text.
type ReplaceAllTextRequest struct {
	ContainsText string
	MatchCase    bool
	ReplaceText  string
	PageIDs      []string
}

// ReplaceMethod selects how an image is fitted into a replaced shape.
type ReplaceMethod string

const (
	ReplaceCenterInside ReplaceMethod = "CENTER_INSIDE"
	ReplaceCenterCrop   ReplaceMethod = "CENTER_CROP"
)

// ReplaceShapeWithImageRequest swaps shapes containing a token for an
// image. The service assigns the new image a generated object id which
// is only knowable from the reply.
type ReplaceShapeWithImageRequest struct {
	ContainsText  string
	MatchCase     bool
	ImageURL      string
	ReplaceMethod ReplaceMethod
	PageIDs       []string
}

// UpdateSizeRequest resizes an element. Width and height are EMU.
type UpdateSizeRequest struct {
	ObjectID string
	Width    int64
	Height   int64
}

// UpdateTransformRequest repositions an element. Translations are EMU.
type UpdateTransformRequest struct {
	ObjectID   string
	ScaleX     float64
	ScaleY     float64
	TranslateX int64
	TranslateY int64
	ApplyMode  string
}

// Reply is the per-request response of a BatchUpdate call.
type Reply struct {
	// OccurrencesChanged is set for text replacements.
	OccurrencesChanged int

	// CreatedObjectID is set for image replacements.
	CreatedObjectID string
}
