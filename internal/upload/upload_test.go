package upload

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/vdec/codec"
	"github.com/gogpu/vdec/codec/codectest"
	"github.com/gogpu/vdec/gpu"
	"github.com/gogpu/vdec/gpu/software"
	"github.com/gogpu/vdec/internal/framepool"
	"github.com/gogpu/vdec/internal/parallel"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		format    codec.PixelFormat
		planes    int
		formats   [3]gpu.Format
		subsample [3]int
		rescale   float32
		swap      bool
	}{
		{codec.PixelFormatYUV420P, 3, [3]gpu.Format{gpu.FormatR8Unorm, gpu.FormatR8Unorm, gpu.FormatR8Unorm}, [3]int{0, 1, 1}, 1, false},
		{codec.PixelFormatYUV444P, 3, [3]gpu.Format{gpu.FormatR8Unorm, gpu.FormatR8Unorm, gpu.FormatR8Unorm}, [3]int{}, 1, false},
		{codec.PixelFormatNV12, 2, [3]gpu.Format{gpu.FormatR8Unorm, gpu.FormatRG8Unorm}, [3]int{0, 1}, 1, false},
		{codec.PixelFormatNV21, 2, [3]gpu.Format{gpu.FormatR8Unorm, gpu.FormatRG8Unorm}, [3]int{0, 1}, 1, true},
		{codec.PixelFormatP010, 2, [3]gpu.Format{gpu.FormatR16Unorm, gpu.FormatRG16Unorm}, [3]int{0, 1}, 65535.0 / 65472.0, false},
		{codec.PixelFormatP410, 2, [3]gpu.Format{gpu.FormatR16Unorm, gpu.FormatRG16Unorm}, [3]int{}, 65535.0 / 65472.0, false},
		{codec.PixelFormatYUV420P10, 3, [3]gpu.Format{gpu.FormatR16Unorm, gpu.FormatR16Unorm, gpu.FormatR16Unorm}, [3]int{0, 1, 1}, 65535.0 / 1023.0, false},
		{codec.PixelFormatP016, 2, [3]gpu.Format{gpu.FormatR16Unorm, gpu.FormatRG16Unorm}, [3]int{0, 1}, 1, false},
		{codec.PixelFormatP416, 2, [3]gpu.Format{gpu.FormatR16Unorm, gpu.FormatRG16Unorm}, [3]int{}, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			l := Classify(tt.format)
			assert.True(t, l.Supported())
			assert.Equal(t, tt.planes, l.Planes)
			assert.Equal(t, tt.formats, l.Formats)
			assert.Equal(t, tt.subsample, l.Subsample)
			assert.InDelta(t, tt.rescale, l.UnormRescale, 1e-6)
			assert.Equal(t, tt.swap, l.SwapUV)
		})
	}

	l := Classify(codec.PixelFormatRGBA)
	assert.False(t, l.Supported())
	assert.Len(t, Passes(&l, false), 1)
}

func TestLayout_PlaneSize(t *testing.T) {
	l := Classify(codec.PixelFormatYUV420P)
	w, h := l.PlaneSize(0, 33, 17)
	assert.Equal(t, [2]int{33, 17}, [2]int{w, h})
	w, h = l.PlaneSize(1, 33, 17)
	assert.Equal(t, [2]int{16, 8}, [2]int{w, h})
	w, h = l.PlaneSize(2, 1, 1)
	assert.Equal(t, [2]int{1, 1}, [2]int{w, h})
}

func TestResolveColorSpace(t *testing.T) {
	assert.Equal(t, codec.ColorSpaceSMPTE170M, ResolveColorSpace(codec.ColorSpaceUnspecified, 480))
	assert.Equal(t, codec.ColorSpaceSMPTE170M, ResolveColorSpace(codec.ColorSpaceUnspecified, 576))
	assert.Equal(t, codec.ColorSpaceBT470BG, ResolveColorSpace(codec.ColorSpaceUnspecified, 700))
	assert.Equal(t, codec.ColorSpaceBT709, ResolveColorSpace(codec.ColorSpaceUnspecified, 720))
	assert.Equal(t, codec.ColorSpaceBT709, ResolveColorSpace(codec.ColorSpaceUnspecified, 1080))
	assert.Equal(t, codec.ColorSpaceBT2020CL, ResolveColorSpace(codec.ColorSpaceUnspecified, 2160))
	assert.Equal(t, codec.ColorSpaceBT709, ResolveColorSpace(codec.ColorSpaceBT709, 480))
}

func assertRGB(t *testing.T, p *gpu.ConvertParams, y, cb, cr, want float32) {
	t.Helper()
	r, g, b := p.Apply(y, cb, cr)
	assert.InDelta(t, want, r, 1e-4)
	assert.InDelta(t, want, g, 1e-4)
	assert.InDelta(t, want, b, 1e-4)
}

func TestNewParams_Range(t *testing.T) {
	l := Classify(codec.PixelFormatYUV420P)
	bt709 := codec.Colorimetry{Space: codec.ColorSpaceBT709}

	narrow, known := NewParams(&l, bt709, 1080)
	require.True(t, known)
	assertRGB(t, narrow, 16.0/255, 128.0/255, 128.0/255, 0)
	assertRGB(t, narrow, 235.0/255, 128.0/255, 128.0/255, 1)
	assert.Equal(t, [3][3]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, narrow.PrimaryConversion)
	assert.Equal(t, 3, narrow.Planes)

	bt709.Range = codec.ColorRangeFull
	full, _ := NewParams(&l, bt709, 1080)
	assertRGB(t, full, 0, 128.0/255, 128.0/255, 0)
	assertRGB(t, full, 1, 128.0/255, 128.0/255, 1)
}

func TestNewParams_TenBit(t *testing.T) {
	l := Classify(codec.PixelFormatP010)
	p, _ := NewParams(&l, codec.Colorimetry{Space: codec.ColorSpaceBT2020NCL}, 2160)

	texel := func(v int) float32 { return float32(v<<6) / 65535 * p.UnormRescale }
	assertRGB(t, p, texel(64), texel(512), texel(512), 0)
	assertRGB(t, p, texel(940), texel(512), texel(512), 1)
	assert.NotEqual(t, [3][3]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, p.PrimaryConversion)
}

func TestNewParams_UnknownSpace(t *testing.T) {
	l := Classify(codec.PixelFormatNV21)
	p, known := NewParams(&l, codec.Colorimetry{Space: codec.ColorSpaceFCC}, 480)
	assert.False(t, known)
	assert.True(t, p.SwapUV)
	assertRGB(t, p, 235.0/255, 128.0/255, 128.0/255, 1)
}

func TestNewParams_ChromaSiting(t *testing.T) {
	l := Classify(codec.PixelFormatNV12)
	p, _ := NewParams(&l, codec.Colorimetry{ChromaLocation: codec.ChromaLocationTopLeft}, 720)
	assert.Equal(t, [2]float32{1, 1}, p.ChromaOffset)
	p, _ = NewParams(&l, codec.Colorimetry{}, 720)
	assert.Equal(t, [2]float32{0.5, 0.5}, p.ChromaOffset)
}

// rig wires an Uploader to a pool and a synchronous chain.
type rig struct {
	dev   *software.Device
	pool  *framepool.Pool
	chain *parallel.Chain
	up    *Uploader
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	dev := software.NewDevice()
	pool := framepool.New(4, nil)
	return &rig{dev: dev, pool: pool, chain: parallel.NewChain(nil, nil), up: New(dev, pool, cfg, nil)}
}

// submit locks a slot and runs the upload of f on the chain.
func (r *rig) submit(t *testing.T, f *codec.VideoFrame) int {
	t.Helper()
	i, err := r.pool.AcquireForDecode(context.Background(), r.chain)
	require.NoError(t, err)
	r.chain.Issue(func() { r.up.Run(context.Background(), i, f) })
	return i
}

func (r *rig) pixel(t *testing.T, img gpu.Image) []byte {
	t.Helper()
	data, err := r.dev.ReadImage(img)
	require.NoError(t, err)
	return data[:4]
}

func TestUploader_ConvertsAndPublishes(t *testing.T) {
	r := newRig(t, Config{Width: 16, Height: 8, TimeBase: 1.0 / 30})
	i := r.submit(t, codectest.Frame(codec.PixelFormatYUV420P, 16, 8, 3))

	assert.Equal(t, framepool.Ready, r.pool.State(i))
	assert.Equal(t, Stats{Uploaded: 1}, r.up.Stats())
	assert.Equal(t, uint64(1), r.chain.Signal().Value())

	f, res := r.pool.TryAcquire()
	require.Equal(t, framepool.AcquireOK, res)
	assert.InDelta(t, 0.1, f.PTS, 1e-9)
	assert.Equal(t, gpu.FormatRGBA8UnormSRGB, f.Image.Format())
	assert.Equal(t, 16, f.Image.Width())

	px := r.pixel(t, f.Image)
	assert.InDelta(t, int(px[0]), int(px[1]), 1)
	assert.InDelta(t, int(px[1]), int(px[2]), 1)
	assert.Greater(t, px[0], uint8(100))
	assert.Less(t, px[0], uint8(150))
	assert.Equal(t, uint8(255), px[3])
}

func TestUploader_UnsupportedFormatIsMagenta(t *testing.T) {
	r := newRig(t, Config{Width: 4, Height: 4, TimeBase: 1})
	i := r.submit(t, codectest.Frame(codec.PixelFormatRGBA, 4, 4, 0))

	require.Equal(t, framepool.Ready, r.pool.State(i))
	assert.Empty(t, r.pool.Slot(i).Planes)
	assert.Equal(t, []byte{255, 0, 255, 255}, r.pixel(t, r.pool.Slot(i).RGB))
}

type failingSurface struct{ released bool }

func (s *failingSurface) TransferToHost() (*codec.VideoFrame, error) {
	return nil, errors.New("device removed")
}

func (s *failingSurface) Release() { s.released = true }

func TestUploader_TransferFailureDropsFrame(t *testing.T) {
	r := newRig(t, Config{Width: 4, Height: 4, TimeBase: 1})
	hw := &failingSurface{}
	i := r.submit(t, &codec.VideoFrame{Width: 4, Height: 4, PTS: 0, HW: hw})

	assert.True(t, hw.released)
	assert.Equal(t, framepool.Idle, r.pool.State(i))
	assert.Equal(t, Stats{Dropped: 1}, r.up.Stats())
	assert.Equal(t, uint64(1), r.chain.Signal().Value())
	assert.Zero(t, r.dev.LiveImages())
}

func TestUploader_FormatChangeReplacesPlanes(t *testing.T) {
	r := newRig(t, Config{Width: 8, Height: 8, TimeBase: 1})
	a := r.submit(t, codectest.Frame(codec.PixelFormatYUV420P, 8, 8, 0))
	f, _ := r.pool.TryAcquire()
	require.Equal(t, a, f.Index)
	require.NoError(t, r.pool.Release(a, nil))
	require.Len(t, r.pool.Slot(a).Planes, 3)

	b := r.submit(t, codectest.Frame(codec.PixelFormatNV12, 8, 8, 1))
	require.NotEqual(t, a, b)
	assert.Empty(t, r.pool.Slot(a).Planes)
	require.Len(t, r.pool.Slot(b).Planes, 2)
	assert.Equal(t, gpu.FormatRG8Unorm, r.pool.Slot(b).Planes[1].Format())
	assert.Equal(t, 4, r.pool.Slot(b).Planes[1].Width())

	// one RGB per used slot plus NV12 planes
	assert.Equal(t, 4, r.dev.LiveImages())
}

func TestUploader_MissingTimestamp(t *testing.T) {
	r := newRig(t, Config{Width: 4, Height: 4, TimeBase: 0.5})
	take := func() float64 {
		t.Helper()
		f, res := r.pool.TryAcquire()
		require.Equal(t, framepool.AcquireOK, res)
		require.NoError(t, r.pool.Release(f.Index, nil))
		return f.PTS
	}

	r.submit(t, codectest.Frame(codec.PixelFormatNV12, 4, 4, 10))
	assert.Equal(t, 5.0, take())
	r.submit(t, codectest.Frame(codec.PixelFormatNV12, 4, 4, codec.NoPTS))
	assert.Equal(t, 5.0, take(), "repeats the previous timestamp")

	// After a seek the previous timestamp no longer applies.
	r.up.Reset(1.5)
	r.submit(t, codectest.Frame(codec.PixelFormatNV12, 4, 4, codec.NoPTS))
	assert.Equal(t, 1.5, take())
	r.submit(t, codectest.Frame(codec.PixelFormatNV12, 4, 4, 4))
	assert.Equal(t, 2.0, take())
}

func TestUploader_Mipmaps(t *testing.T) {
	r := newRig(t, Config{Width: 16, Height: 16, TimeBase: 1, Mipmaps: true})
	i := r.submit(t, codectest.Frame(codec.PixelFormatYUV444P, 16, 16, 0))
	require.Equal(t, framepool.Ready, r.pool.State(i))
	assert.Equal(t, 5, r.pool.Slot(i).RGB.MipLevels())
}

func TestUploader_WaitsForConsumerToken(t *testing.T) {
	r := newRig(t, Config{Width: 4, Height: 4, TimeBase: 1})
	i, err := r.pool.AcquireForDecode(context.Background(), r.chain)
	require.NoError(t, err)
	r.pool.Slot(i).FromClient = gpu.NewFence()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.chain.Issue(func() { r.up.Run(ctx, i, codectest.Frame(codec.PixelFormatNV12, 4, 4, 0)) })

	assert.Equal(t, framepool.Idle, r.pool.State(i))
	assert.Equal(t, uint64(1), r.up.Stats().Dropped)
}
