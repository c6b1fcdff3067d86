// Package upload turns decoded pictures into presentable RGBA images.
//
// Each decoded frame becomes one task on the decoder's upload chain. The
// task copies the frame's planes into the slot's plane images, converts
// them to a single sRGB image and publishes the slot to the consumer.
// Tasks of one decoder run strictly in order, so everything an Uploader
// caches between frames is owned by whichever task is running.
package upload

import (
	"github.com/gogpu/vdec/codec"
	"github.com/gogpu/vdec/gpu"
)

// Layout is the plane setup for one pixel format.
type Layout struct {
	Format codec.PixelFormat

	// Planes is 3 for planar formats, 2 for semi-planar formats and 0 for
	// formats that cannot be converted.
	Planes int

	// Formats and Subsample hold the image format and log2 chroma
	// subsampling of each plane.
	Formats   [3]gpu.Format
	Subsample [3]int

	// UnormRescale maps raw unorm texel values to full scale.
	UnormRescale float32

	SwapUV bool
}

// Supported reports whether frames of this layout can be converted.
func (l *Layout) Supported() bool {
	return l.Planes > 0
}

// PlaneSize returns the dimensions of plane i for a w x h picture.
func (l *Layout) PlaneSize(i, w, h int) (int, int) {
	s := l.Subsample[i]
	return max(w>>s, 1), max(h>>s, 1)
}

// Classify returns the plane layout of f.
func Classify(f codec.PixelFormat) Layout {
	l := Layout{Format: f, UnormRescale: 1}
	switch f {
	case codec.PixelFormatYUV420P, codec.PixelFormatYUV444P:
		l.Planes = 3
		l.Formats = [3]gpu.Format{gpu.FormatR8Unorm, gpu.FormatR8Unorm, gpu.FormatR8Unorm}
		if f == codec.PixelFormatYUV420P {
			l.Subsample = [3]int{0, 1, 1}
		}

	case codec.PixelFormatNV12, codec.PixelFormatNV21:
		l.Planes = 2
		l.Formats = [3]gpu.Format{gpu.FormatR8Unorm, gpu.FormatRG8Unorm}
		l.Subsample = [3]int{0, 1}
		l.SwapUV = f == codec.PixelFormatNV21

	case codec.PixelFormatP010, codec.PixelFormatP410:
		// 10 significant bits in the high end of each 16-bit container.
		l.Planes = 2
		l.Formats = [3]gpu.Format{gpu.FormatR16Unorm, gpu.FormatRG16Unorm}
		if f == codec.PixelFormatP010 {
			l.Subsample = [3]int{0, 1}
		}
		l.UnormRescale = float32(0xffff) / float32(1023<<6)

	case codec.PixelFormatYUV420P10, codec.PixelFormatYUV444P10:
		// 10 significant bits in the low end.
		l.Planes = 3
		l.Formats = [3]gpu.Format{gpu.FormatR16Unorm, gpu.FormatR16Unorm, gpu.FormatR16Unorm}
		if f == codec.PixelFormatYUV420P10 {
			l.Subsample = [3]int{0, 1, 1}
		}
		l.UnormRescale = float32(0xffff) / 1023

	case codec.PixelFormatP016, codec.PixelFormatP416:
		l.Planes = 2
		l.Formats = [3]gpu.Format{gpu.FormatR16Unorm, gpu.FormatRG16Unorm}
		if f == codec.PixelFormatP016 {
			l.Subsample = [3]int{0, 1}
		}
	}
	return l
}
