package layout

// The document API measures everything in English Metric Units. All
// internal resolution happens in EMU; the helpers below exist for
// configuration surfaces that speak inches, points, or pixels.
const (
	EMUPerInch  = 914400
	EMUPerPoint = 12700

	// PxToPt converts CSS pixels to points at the standard 96 dpi.
	PxToPt = 0.75
)

// FromInches converts inches to EMU.
func FromInches(in float64) int64 {
	return int64(in * EMUPerInch)
}

// FromPoints converts points to EMU.
func FromPoints(pt float64) int64 {
	return int64(pt * EMUPerPoint)
}

// FromPixels converts 96-dpi pixels to EMU.
func FromPixels(px float64) int64 {
	return FromPoints(px * PxToPt)
}

// ToInches converts EMU to inches.
func ToInches(emu int64) float64 {
	return float64(emu) / EMUPerInch
}

// ToPoints converts EMU to points.
func ToPoints(emu int64) float64 {
	return float64(emu) / EMUPerPoint
}
