package image

import (
	stdimage "image"
	stdcolor "image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/gogpu/vdec/internal/color"
)

// MipmapChain holds downscaled versions of an RGBA8 image.
//
// Each level is half the size of the previous one, down to 1x1. Level 0
// is the source image.
type MipmapChain struct {
	levels []*ImageBuf
}

// NumMipLevels returns the length of a full mip chain for the given size.
func NumMipLevels(width, height int) int {
	maxDim := max(width, height)
	if maxDim <= 0 {
		return 0
	}
	return 1 + int(math.Floor(math.Log2(float64(maxDim))))
}

// GenerateMipmaps builds a chain of levels levels from src. Filtering
// happens in linear light: texels are decoded from sRGB, scaled with a
// bilinear kernel and re-encoded. A levels value <= 0 builds the full
// chain. The source becomes level 0 and is not copied.
//
// Returns nil if src is nil or not RGBA8.
func GenerateMipmaps(src *ImageBuf, levels int) *MipmapChain {
	if src == nil || src.Format() != FormatRGBA8 {
		return nil
	}
	full := NumMipLevels(src.Width(), src.Height())
	if levels <= 0 || levels > full {
		levels = full
	}

	chain := &MipmapChain{levels: make([]*ImageBuf, levels)}
	chain.levels[0] = src
	for i := 1; i < levels; i++ {
		chain.levels[i] = downsample(chain.levels[i-1])
	}
	return chain
}

func downsample(src *ImageBuf) *ImageBuf {
	dstW := max(1, src.Width()/2)
	dstH := max(1, src.Height()/2)

	dst := levelPool.Get(dstW, dstH, FormatRGBA8)
	if dst == nil {
		return nil
	}

	lin := toLinear(src)
	out := stdimage.NewRGBA64(stdimage.Rect(0, 0, dstW, dstH))
	draw.BiLinear.Scale(out, out.Bounds(), lin, lin.Bounds(), draw.Src, nil)
	fromLinear(dst, out)
	return dst
}

// toLinear decodes an sRGB RGBA8 buffer into 16-bit linear RGBA.
func toLinear(src *ImageBuf) *stdimage.RGBA64 {
	w, h := src.Width(), src.Height()
	img := stdimage.NewRGBA64(stdimage.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			r, g, b, a := src.GetRGBA(x, y)
			c := color.DecodeSRGB(color.ColorU8{R: r, G: g, B: b, A: a})
			img.SetRGBA64(x, y, stdcolor.RGBA64{
				R: unit16(c.R * c.A),
				G: unit16(c.G * c.A),
				B: unit16(c.B * c.A),
				A: unit16(c.A),
			})
		}
	}
	return img
}

// fromLinear encodes premultiplied 16-bit linear RGBA into an sRGB buffer.
func fromLinear(dst *ImageBuf, img *stdimage.RGBA64) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			p := img.RGBA64At(x, y)
			a := float32(p.A) / 65535
			c := color.ColorF32{A: a}
			if a > 0 {
				c.R = float32(p.R) / 65535 / a
				c.G = float32(p.G) / 65535 / a
				c.B = float32(p.B) / 65535 / a
			}
			e := color.EncodeSRGB(c)
			dst.SetRGBA(x-b.Min.X, y-b.Min.Y, e.R, e.G, e.B, e.A)
		}
	}
}

func unit16(v float32) uint16 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 0xffff
	}
	return uint16(v*0xffff + 0.5)
}

// Level returns the mipmap at the specified level.
// Level 0 is the original image. Returns nil if level is out of range.
func (m *MipmapChain) Level(n int) *ImageBuf {
	if m == nil || n < 0 || n >= len(m.levels) {
		return nil
	}
	return m.levels[n]
}

// NumLevels returns the total number of mipmap levels in the chain.
// Returns 0 if the chain is nil.
func (m *MipmapChain) NumLevels() int {
	if m == nil {
		return 0
	}
	return len(m.levels)
}

// Release returns all levels except level 0 to the pool. The chain must
// not be used afterwards.
func (m *MipmapChain) Release() {
	if m == nil {
		return
	}
	for i := 1; i < len(m.levels); i++ {
		if m.levels[i] != nil {
			levelPool.Put(m.levels[i])
			m.levels[i] = nil
		}
	}
}
