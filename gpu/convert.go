package gpu

// ConvertParams is the immutable parameter block of a YUV to RGB
// conversion. It is computed once per pixel format and colorspace change
// and shared read-only by every conversion recorded afterwards.
//
// Matrices are column-major: YUVToRGB[c] is column c.
type ConvertParams struct {
	// YUVToRGB maps (Y, Cb, Cr, 1), each a rescaled unorm texel value, to
	// non-linear RGB. Range expansion and bias are folded in.
	YUVToRGB [4][4]float32

	// PrimaryConversion maps linear RGB in the source primaries to linear
	// BT.709 primaries.
	PrimaryConversion [3][3]float32

	// ChromaOffset is the chroma sample position relative to the top-left
	// corner of a luma texel, in luma texels.
	ChromaOffset [2]float32

	// UnormRescale scales raw unorm texel values before the matrix, so
	// 10-bit samples stored in 16-bit texels reach full scale.
	UnormRescale float32

	// Planes is the number of source planes (2 for semi-planar, 3 for planar).
	Planes int

	// SwapUV swaps Cb and Cr of a semi-planar chroma plane (NV21).
	SwapUV bool
}

// Apply converts one YUV sample to non-linear RGB.
func (p *ConvertParams) Apply(y, cb, cr float32) (r, g, b float32) {
	m := &p.YUVToRGB
	r = m[0][0]*y + m[1][0]*cb + m[2][0]*cr + m[3][0]
	g = m[0][1]*y + m[1][1]*cb + m[2][1]*cr + m[3][1]
	b = m[0][2]*y + m[1][2]*cb + m[2][2]*cr + m[3][2]
	return r, g, b
}

// ToBT709 maps linear RGB in the source primaries to linear BT.709.
func (p *ConvertParams) ToBT709(r, g, b float32) (float32, float32, float32) {
	m := &p.PrimaryConversion
	return m[0][0]*r + m[1][0]*g + m[2][0]*b,
		m[0][1]*r + m[1][1]*g + m[2][1]*b,
		m[0][2]*r + m[1][2]*g + m[2][2]*b
}
