package image

import (
	"encoding/binary"
	"errors"
)

// Common errors for image operations.
var (
	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("image: invalid dimensions")

	// ErrInvalidFormat is returned when the format is not recognized.
	ErrInvalidFormat = errors.New("image: invalid format")

	// ErrInvalidStride is returned when stride is less than minimum required.
	ErrInvalidStride = errors.New("image: stride too small for width")

	// ErrDataTooSmall is returned when provided data is smaller than required.
	ErrDataTooSmall = errors.New("image: data buffer too small")
)

// ImageBuf is a texel buffer with a fixed format and tightly packed rows.
//
// Thread safety: concurrent reads are safe. Writes require external
// synchronization; the decoder guarantees it through slot ownership.
type ImageBuf struct {
	data   []byte
	width  int
	height int
	stride int
	format Format
}

// NewImageBuf creates a zeroed image buffer.
func NewImageBuf(width, height int, format Format) (*ImageBuf, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	if !format.IsValid() {
		return nil, ErrInvalidFormat
	}
	stride := format.RowBytes(width)
	return &ImageBuf{
		data:   make([]byte, stride*height),
		width:  width,
		height: height,
		stride: stride,
		format: format,
	}, nil
}

// Width returns the image width in texels.
func (b *ImageBuf) Width() int { return b.width }

// Height returns the image height in texels.
func (b *ImageBuf) Height() int { return b.height }

// Stride returns the number of bytes per row.
func (b *ImageBuf) Stride() int { return b.stride }

// Format returns the texel format.
func (b *ImageBuf) Format() Format { return b.format }

// Data returns the raw texel data.
func (b *ImageBuf) Data() []byte { return b.data }

// RowBytes returns row y, or nil if y is out of bounds.
func (b *ImageBuf) RowBytes(y int) []byte {
	if y < 0 || y >= b.height {
		return nil
	}
	off := y * b.stride
	return b.data[off : off+b.format.RowBytes(b.width)]
}

// WriteRows copies rows of src, laid out with srcStride bytes per row, into
// the buffer.
func (b *ImageBuf) WriteRows(src []byte, srcStride int) error {
	row := b.format.RowBytes(b.width)
	if srcStride < row {
		return ErrInvalidStride
	}
	if len(src) < srcStride*(b.height-1)+row {
		return ErrDataTooSmall
	}
	for y := range b.height {
		copy(b.data[y*b.stride:y*b.stride+row], src[y*srcStride:y*srcStride+row])
	}
	return nil
}

// Texel returns channel ch of texel (x, y) as a normalized value in [0, 1].
// Coordinates are clamped to the image.
func (b *ImageBuf) Texel(x, y, ch int) float32 {
	x = min(max(x, 0), b.width-1)
	y = min(max(y, 0), b.height-1)
	off := y*b.stride + x*b.format.BytesPerPixel()
	if b.format.BitsPerChannel() == 16 {
		return float32(binary.LittleEndian.Uint16(b.data[off+2*ch:])) / 65535
	}
	return float32(b.data[off+ch]) / 255
}

// Sample returns channel ch bilinearly filtered at normalized coordinates
// (u, v), texel centers at (i+0.5)/size. Edges clamp.
func (b *ImageBuf) Sample(u, v float32, ch int) float32 {
	fx := u*float32(b.width) - 0.5
	fy := v*float32(b.height) - 0.5
	x0 := floor(fx)
	y0 := floor(fy)
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	t00 := b.Texel(x0, y0, ch)
	t10 := b.Texel(x0+1, y0, ch)
	t01 := b.Texel(x0, y0+1, ch)
	t11 := b.Texel(x0+1, y0+1, ch)

	top := t00 + (t10-t00)*tx
	bot := t01 + (t11-t01)*tx
	return top + (bot-top)*ty
}

func floor(v float32) int {
	i := int(v)
	if float32(i) > v {
		i--
	}
	return i
}

// GetRGBA returns the RGBA8 texel at (x, y). Returns zeros when out of
// bounds or when the format is not RGBA8.
func (b *ImageBuf) GetRGBA(x, y int) (r, g, bl, a uint8) {
	if b.format != FormatRGBA8 || x < 0 || y < 0 || x >= b.width || y >= b.height {
		return 0, 0, 0, 0
	}
	off := y*b.stride + x*4
	return b.data[off], b.data[off+1], b.data[off+2], b.data[off+3]
}

// SetRGBA sets the RGBA8 texel at (x, y). Out of bounds writes are ignored.
func (b *ImageBuf) SetRGBA(x, y int, r, g, bl, a uint8) {
	if b.format != FormatRGBA8 || x < 0 || y < 0 || x >= b.width || y >= b.height {
		return
	}
	off := y*b.stride + x*4
	b.data[off], b.data[off+1], b.data[off+2], b.data[off+3] = r, g, bl, a
}

// Clear sets all texels to zero.
func (b *ImageBuf) Clear() {
	clear(b.data)
}

// Fill sets every RGBA8 texel to the given color.
func (b *ImageBuf) Fill(r, g, bl, a uint8) {
	if b.format != FormatRGBA8 {
		return
	}
	for y := range b.height {
		row := b.RowBytes(y)
		for i := 0; i < len(row); i += 4 {
			row[i], row[i+1], row[i+2], row[i+3] = r, g, bl, a
		}
	}
}
