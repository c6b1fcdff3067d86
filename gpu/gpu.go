// Package gpu defines the device abstraction the decoder renders frames
// through.
//
// The decoder never creates a device. The host application owns the GPU
// (or chooses the host-memory implementation in gpu/software) and hands a
// [Device] to the decoder, which only allocates images, uploads plane data,
// records conversions and submits.
//
// Two implementations ship with the module:
//   - gpu/software: host-memory images, conversion on the calling goroutine
//   - gpu/wgpu: images backed by gogpu/wgpu HAL textures
//
// Usage:
//
//	dev := software.NewDevice()
//	dec.BeginDeviceContext(dev, nil)
package gpu

import (
	"context"
	"errors"
)

// Common errors for device operations.
var (
	// ErrInvalidImage is returned when an image was not created by the device
	// or has been destroyed.
	ErrInvalidImage = errors.New("gpu: invalid image")

	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("gpu: invalid dimensions")

	// ErrDataTooSmall is returned when uploaded data does not cover the image.
	ErrDataTooSmall = errors.New("gpu: data buffer too small")

	// ErrDeviceLost is returned after the device has been closed.
	ErrDeviceLost = errors.New("gpu: device lost")
)

// Image is a device-resident 2D image.
type Image interface {
	Width() int
	Height() int
	Format() Format
	MipLevels() int
}

// ImageDesc describes an image to create.
type ImageDesc struct {
	Label     string
	Width     int
	Height    int
	Format    Format
	MipLevels int
}

// Device records and submits image work.
//
// All recording methods act on the device's current batch; Submit closes
// the batch and returns a token that signals once the batch has executed.
// A Device must be safe for use from one goroutine at a time per batch;
// the decoder serializes batches through its upload chain.
type Device interface {
	// CreateImage allocates an image.
	CreateImage(desc ImageDesc) (Image, error)

	// DestroyImage releases an image. Destroying nil is a no-op.
	DestroyImage(img Image)

	// WriteImage uploads tightly or loosely packed texel rows into mip 0.
	WriteImage(img Image, data []byte, stride int) error

	// ConvertYUV writes planes converted by p into dst.
	ConvertYUV(dst Image, planes []Image, p *ConvertParams) error

	// Clear fills mip 0 of dst with a linear RGBA color.
	Clear(dst Image, rgba [4]float32) error

	// GenerateMipmaps fills mips 1..n of img from mip 0.
	GenerateMipmaps(img Image) error

	// Submit executes the recorded batch.
	Submit(ctx context.Context) (Token, error)
}

// Reader is implemented by devices that can read an image back to host
// memory. Pixels are returned tightly packed.
type Reader interface {
	ReadImage(img Image) ([]byte, error)
}
