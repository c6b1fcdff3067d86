// Package color provides the colorimetry used to turn decoded video
// samples into display-ready sRGB texels: YUV matrix coefficients, range
// expansion, chromaticities and transfer functions.
package color

// ColorF32 represents a color with float32 components in [0,1].
// RGB components are linear unless stated otherwise.
// Alpha is always linear.
type ColorF32 struct {
	R, G, B, A float32
}

// ColorU8 represents a color with uint8 components in [0,255].
type ColorU8 struct {
	R, G, B, A uint8
}

// Magenta is the color written for frames whose pixel layout cannot be
// converted.
var Magenta = ColorF32{R: 1, G: 0, B: 1, A: 1}

// Chromaticity is a CIE 1931 xy coordinate.
type Chromaticity struct {
	X, Y float64
}

// Primaries holds the chromaticities of an RGB color space.
type Primaries struct {
	R, G, B, White Chromaticity
}

// D65 white point.
var d65 = Chromaticity{0.3127, 0.3290}

// Standard primaries.
var (
	PrimariesBT709    = Primaries{R: Chromaticity{0.640, 0.330}, G: Chromaticity{0.300, 0.600}, B: Chromaticity{0.150, 0.060}, White: d65}
	PrimariesBT601625 = Primaries{R: Chromaticity{0.640, 0.330}, G: Chromaticity{0.290, 0.600}, B: Chromaticity{0.150, 0.060}, White: d65}
	PrimariesBT601525 = Primaries{R: Chromaticity{0.630, 0.340}, G: Chromaticity{0.310, 0.595}, B: Chromaticity{0.155, 0.070}, White: d65}
	PrimariesBT2020   = Primaries{R: Chromaticity{0.708, 0.292}, G: Chromaticity{0.170, 0.797}, B: Chromaticity{0.131, 0.046}, White: d65}
)

// xyz lifts a chromaticity to XYZ with Y = 1.
func (c Chromaticity) xyz() Vec3 {
	return Vec3{c.X / c.Y, 1, (1 - c.X - c.Y) / c.Y}
}

// ToXYZ returns the matrix mapping linear RGB in p to CIE XYZ.
func (p Primaries) ToXYZ() Mat3 {
	m := Mat3{p.R.xyz(), p.G.xyz(), p.B.xyz()}
	s := m.Inverse().MulVec(p.White.xyz())
	return Mat3{m[0].Scale(s[0]), m[1].Scale(s[1]), m[2].Scale(s[2])}
}

// PrimaryConversion returns the matrix mapping linear RGB in src to linear
// RGB in BT.709 primaries.
func PrimaryConversion(src Primaries) Mat3 {
	return PrimariesBT709.ToXYZ().Inverse().Mul(src.ToXYZ())
}
