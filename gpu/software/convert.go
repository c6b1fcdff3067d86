package software

import (
	"github.com/gogpu/vdec/gpu"
	"github.com/gogpu/vdec/internal/color"
	"github.com/gogpu/vdec/internal/image"
)

// Convert writes planes converted by p into dst, an RGBA8 buffer holding
// sRGB-encoded color.
//
// Per texel: luma is read at the texel, chroma is filtered at the chroma
// sample position, the YUV matrix yields non-linear RGB, the BT.1886 EOTF
// linearizes it, the primaries are mapped to BT.709 and the result is
// sRGB-encoded. Planes may be sized differently from dst; they are
// addressed in normalized coordinates.
func Convert(dst *image.ImageBuf, planes []*image.ImageBuf, p *gpu.ConvertParams) {
	w, h := dst.Width(), dst.Height()
	luma := planes[0]
	rescale := p.UnormRescale
	if rescale == 0 {
		rescale = 1
	}
	invW, invH := 1/float32(w), 1/float32(h)

	for y := range h {
		for x := range w {
			u := (float32(x) + 0.5) * invW
			v := (float32(y) + 0.5) * invH
			yy := luma.Sample(u, v, 0) * rescale

			cu := (float32(x) + p.ChromaOffset[0]) * invW
			cv := (float32(y) + p.ChromaOffset[1]) * invH
			var cb, cr float32
			if p.Planes == 2 {
				cb = planes[1].Sample(cu, cv, 0) * rescale
				cr = planes[1].Sample(cu, cv, 1) * rescale
				if p.SwapUV {
					cb, cr = cr, cb
				}
			} else {
				cb = planes[1].Sample(cu, cv, 0) * rescale
				cr = planes[2].Sample(cu, cv, 0) * rescale
			}

			r, g, b := p.Apply(yy, cb, cr)
			r, g, b = p.ToBT709(color.BT1886ToLinear(r), color.BT1886ToLinear(g), color.BT1886ToLinear(b))
			dst.SetRGBA(x, y, color.LinearToSRGBFast(r), color.LinearToSRGBFast(g), color.LinearToSRGBFast(b), 255)
		}
	}
}
