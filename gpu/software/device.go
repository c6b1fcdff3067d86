// Package software implements gpu.Device in host memory.
//
// Work executes on the recording goroutine, so every token returned by
// Submit is already complete. The device is the default for headless
// decoding and the reference for the conversion math the wgpu device
// mirrors.
package software

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/vdec/gpu"
	"github.com/gogpu/vdec/internal/color"
	"github.com/gogpu/vdec/internal/image"
)

// Image is a host-memory gpu.Image. Level 0 is the converted frame;
// further levels exist when the image was created with MipLevels > 1.
type Image struct {
	label  string
	format gpu.Format
	levels []*image.ImageBuf
	owner  *Device
	alive  atomic.Bool
}

// Width implements gpu.Image.
func (i *Image) Width() int { return i.levels[0].Width() }

// Height implements gpu.Image.
func (i *Image) Height() int { return i.levels[0].Height() }

// Format implements gpu.Image.
func (i *Image) Format() gpu.Format { return i.format }

// MipLevels implements gpu.Image.
func (i *Image) MipLevels() int { return len(i.levels) }

// Label returns the label the image was created with.
func (i *Image) Label() string { return i.label }

// Level returns the texel buffer of mip level n, or nil.
func (i *Image) Level(n int) *image.ImageBuf {
	if n < 0 || n >= len(i.levels) {
		return nil
	}
	return i.levels[n]
}

// Device is a host-memory gpu.Device.
//
// Thread safety: Device is safe for concurrent use. Images must not be
// written concurrently; the decoder's slot ownership guarantees this.
type Device struct {
	pool *image.Pool

	mu      sync.Mutex
	live    int
	closed  bool
	batches uint64
}

// NewDevice creates a software device.
func NewDevice() *Device {
	return &Device{pool: image.NewPool(8)}
}

var (
	_ gpu.Device = (*Device)(nil)
	_ gpu.Reader = (*Device)(nil)
)

func planeFormat(f gpu.Format) (image.Format, bool) {
	switch f {
	case gpu.FormatR8Unorm:
		return image.FormatR8, true
	case gpu.FormatRG8Unorm:
		return image.FormatRG8, true
	case gpu.FormatR16Unorm:
		return image.FormatR16, true
	case gpu.FormatRG16Unorm:
		return image.FormatRG16, true
	case gpu.FormatRGBA8Unorm, gpu.FormatRGBA8UnormSRGB:
		return image.FormatRGBA8, true
	default:
		return 0, false
	}
}

// CreateImage implements gpu.Device.
func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, gpu.ErrInvalidDimensions
	}
	f, ok := planeFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("software: unsupported format %s", desc.Format)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, gpu.ErrDeviceLost
	}

	levels := max(desc.MipLevels, 1)
	if f != image.FormatRGBA8 {
		levels = 1
	}
	levels = min(levels, image.NumMipLevels(desc.Width, desc.Height))

	img := &Image{label: desc.Label, format: desc.Format, owner: d, levels: make([]*image.ImageBuf, levels)}
	w, h := desc.Width, desc.Height
	for i := range levels {
		img.levels[i] = d.pool.Get(w, h, f)
		w, h = max(1, w/2), max(1, h/2)
	}
	img.alive.Store(true)
	d.live++
	return img, nil
}

// DestroyImage implements gpu.Device.
func (d *Device) DestroyImage(img gpu.Image) {
	si, ok := img.(*Image)
	if !ok || si == nil || si.owner != d || !si.alive.CompareAndSwap(true, false) {
		return
	}
	for _, l := range si.levels {
		d.pool.Put(l)
	}
	d.mu.Lock()
	d.live--
	d.mu.Unlock()
}

func (d *Device) image(img gpu.Image) (*Image, error) {
	si, ok := img.(*Image)
	if !ok || si == nil || si.owner != d || !si.alive.Load() {
		return nil, gpu.ErrInvalidImage
	}
	return si, nil
}

// WriteImage implements gpu.Device.
func (d *Device) WriteImage(img gpu.Image, data []byte, stride int) error {
	si, err := d.image(img)
	if err != nil {
		return err
	}
	if err := si.levels[0].WriteRows(data, stride); err != nil {
		return fmt.Errorf("software: write %s: %w", si.label, err)
	}
	return nil
}

// Clear implements gpu.Device.
func (d *Device) Clear(dst gpu.Image, rgba [4]float32) error {
	si, err := d.image(dst)
	if err != nil {
		return err
	}
	c := color.EncodeSRGB(color.ColorF32{R: rgba[0], G: rgba[1], B: rgba[2], A: rgba[3]})
	si.levels[0].Fill(c.R, c.G, c.B, c.A)
	return nil
}

// ConvertYUV implements gpu.Device.
func (d *Device) ConvertYUV(dst gpu.Image, planes []gpu.Image, p *gpu.ConvertParams) error {
	out, err := d.image(dst)
	if err != nil {
		return err
	}
	if p == nil || len(planes) < 2 || len(planes) != p.Planes {
		return fmt.Errorf("software: convert %s: %d planes for a %d-plane layout", out.label, len(planes), paramsPlanes(p))
	}
	bufs := make([]*image.ImageBuf, len(planes))
	for i, pl := range planes {
		si, err := d.image(pl)
		if err != nil {
			return fmt.Errorf("software: convert plane %d: %w", i, err)
		}
		bufs[i] = si.levels[0]
	}
	Convert(out.levels[0], bufs, p)
	return nil
}

func paramsPlanes(p *gpu.ConvertParams) int {
	if p == nil {
		return 0
	}
	return p.Planes
}

// GenerateMipmaps implements gpu.Device.
func (d *Device) GenerateMipmaps(img gpu.Image) error {
	si, err := d.image(img)
	if err != nil {
		return err
	}
	if len(si.levels) < 2 {
		return nil
	}
	chain := image.GenerateMipmaps(si.levels[0], len(si.levels))
	for i := 1; i < chain.NumLevels(); i++ {
		lvl := chain.Level(i)
		copy(si.levels[i].Data(), lvl.Data())
	}
	chain.Release()
	return nil
}

// Submit implements gpu.Device. All recorded work has already executed.
func (d *Device) Submit(ctx context.Context) (gpu.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, gpu.ErrDeviceLost
	}
	d.batches++
	return gpu.Completed(), nil
}

// ReadImage implements gpu.Reader. It returns mip level 0.
func (d *Device) ReadImage(img gpu.Image) ([]byte, error) {
	si, err := d.image(img)
	if err != nil {
		return nil, err
	}
	src := si.levels[0]
	out := make([]byte, 0, src.Format().RowBytes(src.Width())*src.Height())
	for y := range src.Height() {
		out = append(out, src.RowBytes(y)...)
	}
	return out, nil
}

// LiveImages returns the number of images created and not destroyed.
func (d *Device) LiveImages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// Batches returns the number of successful submits.
func (d *Device) Batches() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.batches
}

// Close marks the device lost. Further creates and submits fail.
func (d *Device) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}
