// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package wgpu implements gpu.Device on a gogpu/wgpu HAL device.
//
// Every image has a HAL texture and a host-memory shadow (gpu/software).
// Plane writes land on the shadow and are copied to their textures when
// the batch is submitted. ConvertYUV records a compute pass running the
// naga-compiled conversion shader into mip 0 of the RGB texture and also
// converts on the shadow, which serves ReadImage and the mip chain. The
// token returned by Submit completes with the queue submission.
//
// The HAL device is shared, usually with the application's renderer:
//
//	dev, err := wgpu.NewFromProvider(app.GPUContextProvider())
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//	dec.BeginDeviceContext(dev, nil)
package wgpu

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vdec/gpu"
	"github.com/gogpu/vdec/gpu/software"
)

// ErrNoHAL is returned by NewFromProvider when the provider does not
// expose HAL types.
var ErrNoHAL = errors.New("wgpu: provider does not expose HAL types")

// mirror is the HAL texture of one image.
type mirror struct {
	tex   hal.Texture
	dirty bool

	// converted is set while mip 0 of tex is written by the convert pass.
	converted bool
}

// Device is a gpu.Device backed by HAL textures.
//
// Thread safety: Device is safe for concurrent use. As with the software
// device, an image must not be written concurrently.
type Device struct {
	shadow *software.Device
	be     backend

	mu      sync.Mutex
	mirrors map[gpu.Image]*mirror
	closed  bool
}

var (
	_ gpu.Device = (*Device)(nil)
	_ gpu.Reader = (*Device)(nil)
)

// New creates a device on a shared HAL device and queue. The caller keeps
// ownership of both; Close releases only what the Device created.
func New(device hal.Device, queue hal.Queue) (*Device, error) {
	if device == nil || queue == nil {
		return nil, ErrNoHAL
	}
	be, err := newHALBackend(device, queue)
	if err != nil {
		return nil, err
	}
	return newDevice(be), nil
}

// NewFromProvider creates a device from a provider exposing HalDevice()
// and HalQueue(), such as the gogpu application context.
func NewFromProvider(provider any) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	return New(device, queue)
}

func newDevice(be backend) *Device {
	return &Device{
		shadow:  software.NewDevice(),
		be:      be,
		mirrors: make(map[gpu.Image]*mirror),
	}
}

func storable(f gpu.Format) bool {
	return f == gpu.FormatRGBA8UnormSRGB || f == gpu.FormatRGBA8Unorm
}

// CreateImage implements gpu.Device.
func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	img, err := d.shadow.CreateImage(desc)
	if err != nil {
		return nil, err
	}
	tex, err := d.be.createTexture(desc.Label, desc.Format, uint32(img.Width()), uint32(img.Height()), uint32(img.MipLevels())) //nolint:gosec // image sizes fit uint32
	if err != nil {
		d.shadow.DestroyImage(img)
		return nil, fmt.Errorf("wgpu: create texture %q: %w", desc.Label, err)
	}
	d.mu.Lock()
	d.mirrors[img] = &mirror{tex: tex}
	d.mu.Unlock()
	return img, nil
}

// DestroyImage implements gpu.Device.
func (d *Device) DestroyImage(img gpu.Image) {
	if img == nil {
		return
	}
	d.mu.Lock()
	m := d.mirrors[img]
	delete(d.mirrors, img)
	d.mu.Unlock()
	if m != nil {
		d.be.destroyTexture(m.tex)
	}
	d.shadow.DestroyImage(img)
}

func (d *Device) touch(img gpu.Image, converted bool) {
	d.mu.Lock()
	if m := d.mirrors[img]; m != nil {
		m.dirty = true
		m.converted = converted
	}
	d.mu.Unlock()
}

// WriteImage implements gpu.Device.
func (d *Device) WriteImage(img gpu.Image, data []byte, stride int) error {
	if err := d.shadow.WriteImage(img, data, stride); err != nil {
		return err
	}
	d.touch(img, false)
	return nil
}

// ConvertYUV implements gpu.Device.
func (d *Device) ConvertYUV(dst gpu.Image, planes []gpu.Image, p *gpu.ConvertParams) error {
	if err := d.shadow.ConvertYUV(dst, planes, p); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpu.ErrDeviceLost
	}
	out := d.mirrors[dst]
	if out == nil {
		return errors.New("wgpu: convert into an image of another device")
	}
	texs := make([]hal.Texture, len(planes))
	for i, pl := range planes {
		m := d.mirrors[pl]
		if m == nil {
			return fmt.Errorf("wgpu: convert plane %d of another device", i)
		}
		texs[i] = m.tex
	}
	if err := d.be.convert(out.tex, texs, p, uint32(dst.Width()), uint32(dst.Height())); err != nil { //nolint:gosec // image sizes fit uint32
		return err
	}
	out.dirty = true
	out.converted = true
	return nil
}

// Clear implements gpu.Device.
func (d *Device) Clear(dst gpu.Image, rgba [4]float32) error {
	if err := d.shadow.Clear(dst, rgba); err != nil {
		return err
	}
	d.touch(dst, false)
	return nil
}

// GenerateMipmaps implements gpu.Device.
func (d *Device) GenerateMipmaps(img gpu.Image) error {
	if err := d.shadow.GenerateMipmaps(img); err != nil {
		return err
	}
	d.mu.Lock()
	if m := d.mirrors[img]; m != nil {
		m.dirty = true
	}
	d.mu.Unlock()
	return nil
}

// Submit implements gpu.Device. Every image written since the last submit
// is copied to its texture, all mip levels included except a mip 0 the
// convert pass writes.
func (d *Device) Submit(ctx context.Context) (gpu.Token, error) {
	if _, err := d.shadow.Submit(ctx); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, gpu.ErrDeviceLost
	}
	for img, m := range d.mirrors {
		if !m.dirty {
			continue
		}
		si, ok := img.(*software.Image)
		if !ok {
			continue
		}
		first := 0
		if m.converted {
			first = 1
		}
		for level := first; level < si.MipLevels(); level++ {
			buf := si.Level(level)
			if err := d.be.writeTexture(m.tex, uint32(level), buf.Data(), uint32(buf.Stride()), uint32(buf.Width()), uint32(buf.Height())); err != nil { //nolint:gosec // image sizes fit uint32
				return nil, fmt.Errorf("wgpu: upload mip %d: %w", level, err)
			}
		}
		m.dirty = false
		m.converted = false
	}
	return d.be.submit()
}

// ReadImage implements gpu.Reader from the host shadow.
func (d *Device) ReadImage(img gpu.Image) ([]byte, error) {
	return d.shadow.ReadImage(img)
}

// Texture returns the HAL texture of img, or nil for an image of another
// device.
func (d *Device) Texture(img gpu.Image) hal.Texture {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m := d.mirrors[img]; m != nil {
		return m.tex
	}
	return nil
}

// LiveImages returns the number of images created and not destroyed.
func (d *Device) LiveImages() int {
	return d.shadow.LiveImages()
}

// LiveTextures returns the number of HAL textures.
func (d *Device) LiveTextures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mirrors)
}

// Close destroys every texture and the device's HAL objects. Further
// creates and submits fail with gpu.ErrDeviceLost.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	mirrors := d.mirrors
	d.mirrors = make(map[gpu.Image]*mirror)
	d.mu.Unlock()

	for _, m := range mirrors {
		d.be.destroyTexture(m.tex)
	}
	d.be.close()
	d.shadow.Close()
}
