package upload

import (
	"github.com/gogpu/vdec/codec"
	"github.com/gogpu/vdec/gpu"
	"github.com/gogpu/vdec/internal/color"
)

// ResolveColorSpace returns the color space frames are converted with.
// Unspecified streams are classified by picture height: 525-line SD,
// 625-line SD, HD and UHD.
func ResolveColorSpace(s codec.ColorSpace, height int) codec.ColorSpace {
	if s != codec.ColorSpaceUnspecified {
		return s
	}
	switch {
	case height < 625:
		return codec.ColorSpaceSMPTE170M
	case height < 720:
		return codec.ColorSpaceBT470BG
	case height < 2160:
		return codec.ColorSpaceBT709
	default:
		return codec.ColorSpaceBT2020CL
	}
}

// matrixFor maps a resolved color space to its coefficients and primaries.
// known is false for color spaces that fall back to BT.709.
func matrixFor(s codec.ColorSpace) (m color.Matrix, p color.Primaries, known bool) {
	switch s {
	case codec.ColorSpaceBT709:
		return color.MatrixBT709, color.PrimariesBT709, true
	case codec.ColorSpaceBT2020NCL, codec.ColorSpaceBT2020CL:
		return color.MatrixBT2020, color.PrimariesBT2020, true
	case codec.ColorSpaceSMPTE170M:
		return color.MatrixBT601, color.PrimariesBT601525, true
	case codec.ColorSpaceBT470BG:
		return color.MatrixBT601, color.PrimariesBT601625, true
	case codec.ColorSpaceSMPTE240M:
		return color.MatrixSMPTE240M, color.PrimariesBT601525, true
	default:
		return color.MatrixBT709, color.PrimariesBT709, false
	}
}

func sitingFor(l codec.ChromaLocation) color.Siting {
	switch l {
	case codec.ChromaLocationTopLeft:
		return color.SitingTopLeft
	case codec.ChromaLocationTop:
		return color.SitingTop
	case codec.ChromaLocationLeft:
		return color.SitingLeft
	case codec.ChromaLocationBottomLeft:
		return color.SitingBottomLeft
	case codec.ChromaLocationBottom:
		return color.SitingBottom
	default:
		return color.SitingCenter
	}
}

// NewParams builds the conversion parameters for frames of layout l with
// colorimetry c and picture height h. The returned block is never
// modified afterwards. known is false when the color space was not
// recognized and BT.709 was assumed.
func NewParams(l *Layout, c codec.Colorimetry, h int) (p *gpu.ConvertParams, known bool) {
	m, prim, known := matrixFor(ResolveColorSpace(c.Space, h))

	p = &gpu.ConvertParams{
		YUVToRGB:     color.ConversionMatrix(m, c.Range == codec.ColorRangeFull, l.Format.BitDepth()).Float32(),
		UnormRescale: l.UnormRescale,
		Planes:       l.Planes,
		SwapUV:       l.SwapUV,
	}
	if prim == color.PrimariesBT709 {
		p.PrimaryConversion = color.Identity3.Float32()
	} else {
		p.PrimaryConversion = color.PrimaryConversion(prim).Float32()
	}
	p.ChromaOffset[0], p.ChromaOffset[1] = color.ChromaOffset(sitingFor(c.ChromaLocation))
	return p, known
}
