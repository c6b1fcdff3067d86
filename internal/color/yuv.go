package color

// Matrix identifies a set of YUV matrix coefficients.
type Matrix uint8

// Matrix coefficient sets.
const (
	MatrixBT709 Matrix = iota
	MatrixBT2020
	MatrixBT601
	MatrixSMPTE240M
)

// String returns the name of the coefficient set.
func (m Matrix) String() string {
	switch m {
	case MatrixBT709:
		return "BT.709"
	case MatrixBT2020:
		return "BT.2020"
	case MatrixBT601:
		return "BT.601"
	case MatrixSMPTE240M:
		return "SMPTE 240M"
	default:
		return "Unknown"
	}
}

// YUVToRGB returns the matrix mapping zero-centered (Y, Cb, Cr) to
// non-linear RGB.
func (m Matrix) YUVToRGB() Mat3 {
	switch m {
	case MatrixBT2020:
		return Mat3{
			{1, 1, 1},
			{0, -0.11156702 / 0.6780, 1.8814},
			{1.4746, -0.38737742 / 0.6780, 0},
		}
	case MatrixBT601:
		return Mat3{
			{1, 1, 1},
			{0, -0.202008 / 0.587, 1.772},
			{1.402, -0.419198 / 0.587, 0},
		}
	case MatrixSMPTE240M:
		return Mat3{
			{1, 1, 1},
			{0, -0.58862 / 0.701, 1.826},
			{1.576, -0.334112 / 0.701, 0},
		}
	default:
		return Mat3{
			{1, 1, 1},
			{0, -0.13397432 / 0.7152, 1.8556},
			{1.5748, -0.33480248 / 0.7152, 0},
		}
	}
}

// RangeExpansion returns the affine transform taking normalized samples of
// the given bit depth to zero-based luma and zero-centered chroma.
//
// Narrow range places luma in [16, 235] and chroma in [16, 240] at 8 bits,
// shifted left by depth-8 for higher depths.
func RangeExpansion(full bool, depth int) Mat4 {
	if depth < 8 {
		depth = 8
	}
	shift := uint(depth - 8)
	unorm := float64(int(1)<<uint(depth) - 1)
	mid := float64(int(1) << uint(depth-1))

	lumaOffset := 0.0
	lumaScale, chromaScale := 1.0, 1.0
	if !full {
		lumaOffset = float64(int(16) << shift)
		lumaScale = unorm / float64(int(219)<<shift)
		chromaScale = unorm / float64(int(224)<<shift)
	}

	bias := Vec3{-lumaOffset / unorm, -mid / unorm, -mid / unorm}
	scale := Affine(Mat3{{lumaScale, 0, 0}, {0, chromaScale, 0}, {0, 0, chromaScale}}, Vec3{})
	translate := Affine(Identity3, bias)
	return scale.Mul(translate)
}

// ConversionMatrix returns the full transform from normalized (Y, Cb, Cr, 1)
// samples to non-linear RGB.
func ConversionMatrix(m Matrix, full bool, depth int) Mat4 {
	return Affine(m.YUVToRGB(), Vec3{}).Mul(RangeExpansion(full, depth))
}

// Siting is the position of a chroma sample relative to its luma samples.
type Siting uint8

// Chroma sample positions.
const (
	SitingCenter Siting = iota
	SitingLeft
	SitingTopLeft
	SitingTop
	SitingBottomLeft
	SitingBottom
)

// ChromaOffset returns the chroma sample offset for s, in luma texels from
// the top-left corner of the luma texel.
func ChromaOffset(s Siting) (x, y float32) {
	switch s {
	case SitingTopLeft:
		return 1, 1
	case SitingTop:
		return 0.5, 1
	case SitingLeft:
		return 1, 0.5
	case SitingBottomLeft:
		return 1, 0
	case SitingBottom:
		return 0.5, 0
	default:
		return 0.5, 0.5
	}
}
