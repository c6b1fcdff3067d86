package upload

import (
	"context"
	"fmt"

	"github.com/gogpu/vdec/codec"
	"github.com/gogpu/vdec/gpu"
	"github.com/gogpu/vdec/internal/framepool"
)

// Magenta is the color written for frames whose pixel format has no
// conversion.
var Magenta = [4]float32{1, 0, 1, 1}

// PassContext carries the state one task's passes operate on.
type PassContext struct {
	Ctx    context.Context
	Device gpu.Device
	Slot   *framepool.Slot
	Frame  *codec.VideoFrame
	Layout *Layout
	Params *gpu.ConvertParams
}

// Pass is one recorded step of an upload task.
type Pass interface {
	Name() string
	Execute(pc *PassContext) error
}

// UploadPass copies the frame's planes into the slot's plane images.
type UploadPass struct{}

// Name implements Pass.
func (UploadPass) Name() string { return "upload" }

// Execute implements Pass.
func (UploadPass) Execute(pc *PassContext) error {
	f := pc.Frame
	if len(f.Planes) < pc.Layout.Planes || len(f.Strides) < pc.Layout.Planes {
		return fmt.Errorf("upload: %s frame has %d planes, want %d", f.Format, len(f.Planes), pc.Layout.Planes)
	}
	for i := range pc.Layout.Planes {
		if err := pc.Device.WriteImage(pc.Slot.Planes[i], f.Planes[i], f.Strides[i]); err != nil {
			return fmt.Errorf("upload: plane %d: %w", i, err)
		}
	}
	return nil
}

// ConvertPass converts the slot's planes into its RGB image.
type ConvertPass struct{}

// Name implements Pass.
func (ConvertPass) Name() string { return "convert" }

// Execute implements Pass.
func (ConvertPass) Execute(pc *PassContext) error {
	return pc.Device.ConvertYUV(pc.Slot.RGB, pc.Slot.Planes, pc.Params)
}

// ClearPass fills the slot's RGB image with a solid color.
type ClearPass struct {
	Color [4]float32
}

// Name implements Pass.
func (ClearPass) Name() string { return "clear" }

// Execute implements Pass.
func (p ClearPass) Execute(pc *PassContext) error {
	return pc.Device.Clear(pc.Slot.RGB, p.Color)
}

// MipPass regenerates the mip chain of the slot's RGB image.
type MipPass struct{}

// Name implements Pass.
func (MipPass) Name() string { return "mipgen" }

// Execute implements Pass.
func (MipPass) Execute(pc *PassContext) error {
	return pc.Device.GenerateMipmaps(pc.Slot.RGB)
}

// Passes returns the passes recorded for frames of layout l.
func Passes(l *Layout, mipmaps bool) []Pass {
	var passes []Pass
	if l.Supported() {
		passes = append(passes, UploadPass{}, ConvertPass{})
	} else {
		passes = append(passes, ClearPass{Color: Magenta})
	}
	if mipmaps {
		passes = append(passes, MipPass{})
	}
	return passes
}
