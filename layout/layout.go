// Package layout maps chart categories and metric-key patterns to
// concrete sizes and positions in the document coordinate system.
//
// Resolution is pure and synchronous: per-document override, then named
// preset, then category default, then the global default, with min/max
// clamping applied last. All values are EMU.
package layout

import (
	"strings"

	"github.com/deckflow/deckflow-go/charttype"
	"github.com/deckflow/deckflow-go/deckflow"
)

// StyleConfig is the resolved styling for one chart, before clamping.
type StyleConfig struct {
	SizePreset     SizePreset
	PositionPreset PositionPreset
	CustomSize     *Size
	CustomPosition *Position

	ReplaceMethod       deckflow.ReplaceMethod
	MaintainAspectRatio bool

	MinWidth, MaxWidth   int64
	MinHeight, MaxHeight int64
}

// chartConfigs keys styling by the hint names the classifier produces.
var chartConfigs = map[string]StyleConfig{
	"monthly_sales":            {SizePreset: SizeWide, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	"monthly_sales_yoy":        {SizePreset: SizeWide, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	"monthly_sales_trend":      {SizePreset: SizeWide, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	"monthly_sales_by_product": {SizePreset: SizeStacked, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	"aov":                      {SizePreset: SizeLine, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	"aov_by_product":           {SizePreset: SizeStacked, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	"monthly_orders":           {SizePreset: SizeWide, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	"orders_by_user_type":      {SizePreset: SizeStacked, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	"orders_by_product_type":   {SizePreset: SizeStacked, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	"user_demographics":        {SizePreset: SizePie, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	"demographics":             {SizePreset: SizePie, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	"demographics_percentage":  {SizePreset: SizePie, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	"sales_chart":              {SizePreset: SizeWide, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	"orders_chart":             {SizePreset: SizeDefault, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	"demographic_chart":        {SizePreset: SizePie, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	"generic_chart":            {SizePreset: SizeDefault, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
}

// categoryDefaults back up metric keys no named preset matches.
var categoryDefaults = map[deckflow.ChartCategory]StyleConfig{
	deckflow.CategoryBar:        {SizePreset: SizeWide, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	deckflow.CategoryStackedBar: {SizePreset: SizeStacked, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	deckflow.CategoryLine:       {SizePreset: SizeLine, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
	deckflow.CategoryPie:        {SizePreset: SizePie, PositionPreset: PosCenter, ReplaceMethod: deckflow.ReplaceCenterInside, MaintainAspectRatio: true},
}

var globalDefault = StyleConfig{
	SizePreset:          SizeDefault,
	PositionPreset:      PosCenter,
	ReplaceMethod:       deckflow.ReplaceCenterInside,
	MaintainAspectRatio: true,
}

// similarityPatterns pick a named config for key variants no exact hint
// covers. All keywords of an entry must appear; first hit wins.
var similarityPatterns = []struct {
	keywords []string
	config   string
}{
	{[]string{"monthly", "sales"}, "monthly_sales"},
	{[]string{"aov"}, "aov"},
	{[]string{"average"}, "aov"},
	{[]string{"orders", "user"}, "orders_by_user_type"},
	{[]string{"orders", "product"}, "orders_by_product_type"},
	{[]string{"demographic", "users"}, "user_demographics"},
	{[]string{"sales"}, "sales_chart"},
	{[]string{"orders"}, "orders_chart"},
	{[]string{"demographic"}, "demographic_chart"},
}

// Resolver resolves chart layouts, optionally specialized per target
// document through an override store.
type Resolver struct {
	overrides *OverrideStore
}

// NewResolver builds a resolver. The override store may be nil.
func NewResolver(overrides *OverrideStore) *Resolver {
	return &Resolver{overrides: overrides}
}

// Config resolves the styling configuration for a metric without
// clamping, exposed for the engine's request construction.
func (r *Resolver) Config(category deckflow.ChartCategory, metricKey, documentID string) StyleConfig {
	cfg := baseConfig(category, metricKey)
	if r.overrides != nil && documentID != "" {
		cfg = r.overrides.Apply(documentID, styleKeyFor(metricKey), cfg)
	}
	return cfg
}

// Resolve returns the final size and position for a chart, after
// override application and constraint clamping.
func (r *Resolver) Resolve(category deckflow.ChartCategory, metricKey, documentID string) (Size, Position) {
	cfg := r.Config(category, metricKey, documentID)

	size := PresetSize(cfg.SizePreset)
	if cfg.CustomSize != nil {
		size = *cfg.CustomSize
	}
	size = clamp(size, cfg)

	pos := PresetPosition(cfg.PositionPreset)
	if cfg.CustomPosition != nil {
		pos = *cfg.CustomPosition
	}
	return size, pos
}

// styleKeyFor normalizes a metric key to a hint name via the shared
// pattern table, falling back to keyword similarity.
func styleKeyFor(metricKey string) string {
	if hint, _ := charttype.DetectHint(metricKey); hint != "" {
		if _, ok := chartConfigs[hint]; ok {
			return hint
		}
	}
	normalized := strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(metricKey))
	for _, p := range similarityPatterns {
		all := true
		for _, kw := range p.keywords {
			if !strings.Contains(normalized, kw) {
				all = false
				break
			}
		}
		if all {
			return p.config
		}
	}
	return ""
}

func baseConfig(category deckflow.ChartCategory, metricKey string) StyleConfig {
	if key := styleKeyFor(metricKey); key != "" {
		if cfg, ok := chartConfigs[key]; ok {
			return cfg
		}
	}
	if cfg, ok := categoryDefaults[category]; ok {
		return cfg
	}
	return globalDefault
}

// clamp applies min/max width and height. When the config maintains
// aspect ratio, clamping one dimension scales the other by the same
// ratio.
func clamp(size Size, cfg StyleConfig) Size {
	ratio := 0.0
	if size.Height != 0 {
		ratio = float64(size.Width) / float64(size.Height)
	}

	scale := func(clamped, original int64) float64 {
		if original == 0 {
			return 1
		}
		return float64(clamped) / float64(original)
	}

	if cfg.MinWidth > 0 && size.Width < cfg.MinWidth {
		if cfg.MaintainAspectRatio && ratio > 0 {
			size.Height = int64(float64(size.Height) * scale(cfg.MinWidth, size.Width))
		}
		size.Width = cfg.MinWidth
	}
	if cfg.MaxWidth > 0 && size.Width > cfg.MaxWidth {
		if cfg.MaintainAspectRatio && ratio > 0 {
			size.Height = int64(float64(size.Height) * scale(cfg.MaxWidth, size.Width))
		}
		size.Width = cfg.MaxWidth
	}
	if cfg.MinHeight > 0 && size.Height < cfg.MinHeight {
		if cfg.MaintainAspectRatio && ratio > 0 {
			size.Width = int64(float64(size.Width) * scale(cfg.MinHeight, size.Height))
		}
		size.Height = cfg.MinHeight
	}
	if cfg.MaxHeight > 0 && size.Height > cfg.MaxHeight {
		if cfg.MaintainAspectRatio && ratio > 0 {
			size.Width = int64(float64(size.Width) * scale(cfg.MaxHeight, size.Height))
		}
		size.Height = cfg.MaxHeight
	}
	return size
}

// Anchor selects the reference point for transform construction.
type Anchor string

const (
	AnchorTopLeft Anchor = "top_left"
	AnchorCenter  Anchor = "center"
)

// SizeRequest builds the API mutation that resizes an element.
func SizeRequest(objectID string, size Size) deckflow.Request {
	return deckflow.Request{UpdateSize: &deckflow.UpdateSizeRequest{
		ObjectID: objectID,
		Width:    size.Width,
		Height:   size.Height,
	}}
}

// TransformRequest builds the API mutation that positions an element.
// With AnchorCenter the translation is adjusted by half the size so the
// given point becomes the element's center.
func TransformRequest(objectID string, size Size, pos Position, anchor Anchor) deckflow.Request {
	x, y := pos.X, pos.Y
	if anchor == AnchorCenter {
		x -= size.Width / 2
		y -= size.Height / 2
	}
	return deckflow.Request{UpdateTransform: &deckflow.UpdateTransformRequest{
		ObjectID:   objectID,
		ScaleX:     1,
		ScaleY:     1,
		TranslateX: x,
		TranslateY: y,
		ApplyMode:  "ABSOLUTE",
	}}
}
