package deckflow

// PayloadKind tags the runtime shape a payload arrived in.
type PayloadKind int

const (
	// PayloadStructured is a map carrying structured_data and narrative.
	PayloadStructured PayloadKind = iota
	// PayloadText is a bare string (narrative only, no data).
	PayloadText
	// PayloadEmpty is a missing or nil payload.
	PayloadEmpty
)

// PayloadView is a tagged view over the heterogeneous agent output.
//
// Upstream agents return maps, bare strings, or nothing at all. The view
// is built exactly once at the ingestion boundary so downstream code
// reads through stable accessors instead of re-branching on runtime
// shape.
type PayloadView struct {
	kind      PayloadKind
	raw       map[string]interface{}
	text      string
	structRef map[string]interface{}
}

// NewStructuredPayload wraps a map-shaped agent response.
func NewStructuredPayload(raw map[string]interface{}) *PayloadView {
	v := &PayloadView{kind: PayloadStructured, raw: raw}
	if sd, ok := raw["structured_data"].(map[string]interface{}); ok {
		v.structRef = sd
	}
	return v
}

// NewTextPayload wraps a bare-string agent response.
func NewTextPayload(text string) *PayloadView {
	return &PayloadView{kind: PayloadText, text: text}
}

// NewEmptyPayload represents a missing response.
func NewEmptyPayload() *PayloadView {
	return &PayloadView{kind: PayloadEmpty}
}

// Kind reports the payload's ingestion shape.
func (v *PayloadView) Kind() PayloadKind {
	if v == nil {
		return PayloadEmpty
	}
	return v.kind
}

// Raw returns the underlying map for structured payloads, nil otherwise.
func (v *PayloadView) Raw() map[string]interface{} {
	if v == nil {
		return nil
	}
	return v.raw
}

// StructuredData returns the category->value mapping, or nil when the
// payload has none.
func (v *PayloadView) StructuredData() map[string]interface{} {
	if v == nil {
		return nil
	}
	return v.structRef
}

// Narrative returns the free-text description accompanying the data.
func (v *PayloadView) Narrative() string {
	if v == nil {
		return ""
	}
	switch v.kind {
	case PayloadText:
		return v.text
	case PayloadStructured:
		if p, ok := v.raw["paragraph"].(string); ok {
			return p
		}
	}
	return ""
}

// TotalVariations counts the entries in the primary data mapping. Used
// for expected-size checks.
func (v *PayloadView) TotalVariations() int {
	return len(v.StructuredData())
}

// Field resolves a top-level field by name on structured payloads.
func (v *PayloadView) Field(name string) (interface{}, bool) {
	if v == nil || v.kind != PayloadStructured {
		return nil, false
	}
	val, ok := v.raw[name]
	return val, ok
}
