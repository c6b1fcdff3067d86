package color

import "math"

// SRGBToLinear converts an sRGB component to linear.
// Formula: if s <= 0.04045: s/12.92; else: pow((s+0.055)/1.055, 2.4)
func SRGBToLinear(s float32) float32 {
	if s <= 0.04045 {
		return s / 12.92
	}
	return float32(math.Pow(float64((s+0.055)/1.055), 2.4))
}

// LinearToSRGB converts a linear component to sRGB.
// Formula: if l <= 0.0031308: l*12.92; else: 1.055*pow(l, 1/2.4)-0.055
func LinearToSRGB(l float32) float32 {
	if l <= 0.0031308 {
		return l * 12.92
	}
	return 1.055*float32(math.Pow(float64(l), 1.0/2.4)) - 0.055
}

// BT1886ToLinear applies the BT.1886 reference display EOTF (gamma 2.4,
// zero black level). Negative input clamps to zero.
func BT1886ToLinear(v float32) float32 {
	if v <= 0 {
		return 0
	}
	return float32(math.Pow(float64(v), 2.4))
}

// EncodeSRGB converts a linear color to sRGB-encoded bytes.
// Alpha is stored linearly.
func EncodeSRGB(c ColorF32) ColorU8 {
	return ColorU8{
		R: LinearToSRGBFast(c.R),
		G: LinearToSRGBFast(c.G),
		B: LinearToSRGBFast(c.B),
		A: clampAndRound(c.A),
	}
}

// DecodeSRGB converts sRGB-encoded bytes to a linear color.
func DecodeSRGB(c ColorU8) ColorF32 {
	return ColorF32{
		R: SRGBToLinearFast(c.R),
		G: SRGBToLinearFast(c.G),
		B: SRGBToLinearFast(c.B),
		A: float32(c.A) / 255,
	}
}

// clampAndRound clamps a float32 to [0,1] and converts to uint8 with rounding.
func clampAndRound(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255.0 + 0.5)
}
