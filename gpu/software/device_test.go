package software

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/vdec/gpu"
	"github.com/gogpu/vdec/internal/color"
)

func bt709Params(planes int, swap bool) *gpu.ConvertParams {
	return &gpu.ConvertParams{
		YUVToRGB:          color.ConversionMatrix(color.MatrixBT709, false, 8).Float32(),
		PrimaryConversion: color.Identity3.Float32(),
		ChromaOffset:      [2]float32{0.5, 0.5},
		UnormRescale:      1,
		Planes:            planes,
		SwapUV:            swap,
	}
}

func mustCreate(t *testing.T, d *Device, w, h int, f gpu.Format) gpu.Image {
	t.Helper()
	img, err := d.CreateImage(gpu.ImageDesc{Width: w, Height: h, Format: f})
	require.NoError(t, err)
	return img
}

func TestDevice_ConvertPlanarWhiteAndBlack(t *testing.T) {
	d := NewDevice()
	y := mustCreate(t, d, 2, 1, gpu.FormatR8Unorm)
	cb := mustCreate(t, d, 1, 1, gpu.FormatR8Unorm)
	cr := mustCreate(t, d, 1, 1, gpu.FormatR8Unorm)
	out := mustCreate(t, d, 2, 1, gpu.FormatRGBA8UnormSRGB)

	require.NoError(t, d.WriteImage(y, []byte{235, 16}, 2))
	require.NoError(t, d.WriteImage(cb, []byte{128}, 1))
	require.NoError(t, d.WriteImage(cr, []byte{128}, 1))
	require.NoError(t, d.ConvertYUV(out, []gpu.Image{y, cb, cr}, bt709Params(3, false)))

	tok, err := d.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, tok.Done())

	px, err := d.ReadImage(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 255, 255, 255, 0, 0, 0, 255}, px)
}

func TestDevice_ConvertSemiPlanarSwap(t *testing.T) {
	d := NewDevice()
	y := mustCreate(t, d, 1, 1, gpu.FormatR8Unorm)
	uv := mustCreate(t, d, 1, 1, gpu.FormatRG8Unorm)
	a := mustCreate(t, d, 1, 1, gpu.FormatRGBA8UnormSRGB)
	b := mustCreate(t, d, 1, 1, gpu.FormatRGBA8UnormSRGB)

	require.NoError(t, d.WriteImage(y, []byte{81}, 1))
	require.NoError(t, d.WriteImage(uv, []byte{90, 240}, 2))
	require.NoError(t, d.ConvertYUV(a, []gpu.Image{y, uv}, bt709Params(2, false)))
	require.NoError(t, d.ConvertYUV(b, []gpu.Image{y, uv}, bt709Params(2, true)))

	pa, _ := d.ReadImage(a)
	pb, _ := d.ReadImage(b)
	// High Cr is red; swapping puts the high value into Cb, which is blue.
	assert.Greater(t, pa[0], pa[2])
	assert.Greater(t, pb[2], pb[0])
}

func TestDevice_ConvertPlaneCountMismatch(t *testing.T) {
	d := NewDevice()
	y := mustCreate(t, d, 1, 1, gpu.FormatR8Unorm)
	out := mustCreate(t, d, 1, 1, gpu.FormatRGBA8UnormSRGB)
	assert.Error(t, d.ConvertYUV(out, []gpu.Image{y}, bt709Params(3, false)))
}

func TestDevice_ClearMagenta(t *testing.T) {
	d := NewDevice()
	out := mustCreate(t, d, 2, 2, gpu.FormatRGBA8UnormSRGB)
	require.NoError(t, d.Clear(out, [4]float32{1, 0, 1, 1}))

	px, err := d.ReadImage(out)
	require.NoError(t, err)
	for i := 0; i < len(px); i += 4 {
		assert.Equal(t, []byte{255, 0, 255, 255}, px[i:i+4])
	}
}

func TestDevice_GenerateMipmaps(t *testing.T) {
	d := NewDevice()
	img, err := d.CreateImage(gpu.ImageDesc{Width: 4, Height: 4, Format: gpu.FormatRGBA8UnormSRGB, MipLevels: 8})
	require.NoError(t, err)
	assert.Equal(t, 3, img.MipLevels())

	require.NoError(t, d.Clear(img, [4]float32{1, 1, 1, 1}))
	require.NoError(t, d.GenerateMipmaps(img))

	lvl := img.(*Image).Level(2)
	r, g, b, a := lvl.GetRGBA(0, 0)
	assert.Equal(t, [4]uint8{255, 255, 255, 255}, [4]uint8{r, g, b, a})
}

func TestDevice_DestroyedImage(t *testing.T) {
	d := NewDevice()
	img := mustCreate(t, d, 1, 1, gpu.FormatR8Unorm)
	assert.Equal(t, 1, d.LiveImages())

	d.DestroyImage(img)
	d.DestroyImage(img)
	d.DestroyImage(nil)
	assert.Equal(t, 0, d.LiveImages())
	assert.ErrorIs(t, d.WriteImage(img, []byte{0}, 1), gpu.ErrInvalidImage)
}

func TestDevice_Closed(t *testing.T) {
	d := NewDevice()
	d.Close()

	_, err := d.CreateImage(gpu.ImageDesc{Width: 1, Height: 1, Format: gpu.FormatR8Unorm})
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
	_, err = d.Submit(context.Background())
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
}

func TestDevice_CreateInvalid(t *testing.T) {
	d := NewDevice()
	_, err := d.CreateImage(gpu.ImageDesc{Width: 0, Height: 1, Format: gpu.FormatR8Unorm})
	assert.ErrorIs(t, err, gpu.ErrInvalidDimensions)
	_, err = d.CreateImage(gpu.ImageDesc{Width: 1, Height: 1})
	assert.Error(t, err)
}
