package layout

// SizePreset names a predefined chart size.
type SizePreset string

const (
	SizeDefault SizePreset = "default"
	SizeWide    SizePreset = "wide_chart"
	SizeTall    SizePreset = "tall_chart"
	SizeSquare  SizePreset = "square_chart"
	SizeLine    SizePreset = "line_chart"
	SizePie     SizePreset = "pie_chart"
	SizeStacked SizePreset = "stacked_chart"
	SizeCompact SizePreset = "compact_chart"
)

// PositionPreset names a predefined offset from the placeholder center.
type PositionPreset string

const (
	PosCenter       PositionPreset = "center"
	PosTopLeft      PositionPreset = "top_left"
	PosTopRight     PositionPreset = "top_right"
	PosTopCenter    PositionPreset = "top_center"
	PosBottomLeft   PositionPreset = "bottom_left"
	PosBottomRight  PositionPreset = "bottom_right"
	PosBottomCenter PositionPreset = "bottom_center"
	PosLeftCenter   PositionPreset = "left_center"
	PosRightCenter  PositionPreset = "right_center"
	PosFullWidth    PositionPreset = "full_width"
)

// Size is a resolved chart size in EMU.
type Size struct {
	Width  int64
	Height int64
}

// Position is a resolved offset in EMU, relative to the placeholder.
type Position struct {
	X int64
	Y int64
}

// sizePresets holds the preset dimensions in EMU.
var sizePresets = map[SizePreset]Size{
	SizeDefault: {FromInches(6), FromInches(4.5)},
	SizeWide:    {FromInches(8), FromInches(4)},
	SizeTall:    {FromInches(6), FromInches(6)},
	SizeSquare:  {FromInches(5), FromInches(5)},
	SizeLine:    {FromInches(8), FromInches(3.5)},
	SizePie:     {FromInches(4.5), FromInches(4.5)},
	SizeStacked: {FromInches(7), FromInches(5)},
	SizeCompact: {FromInches(4.5), FromInches(3.5)},
}

// positionPresets holds the preset offsets in EMU.
var positionPresets = map[PositionPreset]Position{
	PosCenter:       {0, 0},
	PosTopLeft:      {-FromInches(1), -FromInches(0.75)},
	PosTopRight:     {FromInches(1), -FromInches(0.75)},
	PosTopCenter:    {0, -FromInches(0.75)},
	PosBottomLeft:   {-FromInches(1), FromInches(0.75)},
	PosBottomRight:  {FromInches(1), FromInches(0.75)},
	PosBottomCenter: {0, FromInches(0.75)},
	PosLeftCenter:   {-FromInches(1), 0},
	PosRightCenter:  {FromInches(1), 0},
	PosFullWidth:    {0, 0},
}

// PresetSize looks up a size preset, defaulting to SizeDefault for
// unknown names.
func PresetSize(p SizePreset) Size {
	if s, ok := sizePresets[p]; ok {
		return s
	}
	return sizePresets[SizeDefault]
}

// PresetPosition looks up a position preset, defaulting to center.
func PresetPosition(p PositionPreset) Position {
	if pos, ok := positionPresets[p]; ok {
		return pos
	}
	return positionPresets[PosCenter]
}
