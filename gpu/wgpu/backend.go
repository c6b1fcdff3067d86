// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package wgpu

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vdec/gpu"
)

// pollInterval is how often a submission token re-checks the queue.
const pollInterval = time.Millisecond

// convertWorkgroup matches @workgroup_size in convertWGSL.
const convertWorkgroup = 8

// backend is the part of the HAL the device mirrors images into.
type backend interface {
	createTexture(label string, format gpu.Format, width, height, mips uint32) (hal.Texture, error)
	destroyTexture(tex hal.Texture)
	writeTexture(tex hal.Texture, level uint32, data []byte, bytesPerRow, width, height uint32) error
	convert(dst hal.Texture, planes []hal.Texture, p *gpu.ConvertParams, width, height uint32) error
	submit() (gpu.Token, error)
	close()
}

func textureFormat(f gpu.Format) (gputypes.TextureFormat, bool) {
	switch f {
	case gpu.FormatR8Unorm:
		return gputypes.TextureFormatR8Unorm, true
	case gpu.FormatRG8Unorm:
		return gputypes.TextureFormatRG8Unorm, true
	case gpu.FormatR16Unorm:
		return gputypes.TextureFormatR16Unorm, true
	case gpu.FormatRG16Unorm:
		return gputypes.TextureFormatRG16Unorm, true
	case gpu.FormatRGBA8Unorm, gpu.FormatRGBA8UnormSRGB:
		// sRGB images hold encoded values; the convert pass stores them
		// through an rgba8unorm storage binding.
		return gputypes.TextureFormatRGBA8Unorm, true
	default:
		return gputypes.TextureFormatUndefined, false
	}
}

// batch holds the HAL objects one submission references.
type batch struct {
	index   uint64
	encoder hal.CommandEncoder
	cmd     hal.CommandBuffer
	buffers []hal.Buffer
	views   []hal.TextureView
	groups  []hal.BindGroup
}

// halBackend drives a shared hal.Device and hal.Queue. Conversions are
// recorded as compute passes into the current batch; submit hands the
// batch to the queue.
type halBackend struct {
	device hal.Device
	queue  hal.Queue

	shader   hal.ShaderModule
	bgLayout hal.BindGroupLayout
	plLayout hal.PipelineLayout
	pipeline hal.ComputePipeline
	sampler  hal.Sampler

	mu       sync.Mutex
	current  *batch
	inflight []*batch
}

func newHALBackend(device hal.Device, queue hal.Queue) (*halBackend, error) {
	words, err := CompileConvertShader()
	if err != nil {
		return nil, err
	}
	b := &halBackend{device: device, queue: queue}
	if err := b.init(words); err != nil {
		b.destroyPipeline()
		return nil, err
	}
	return b, nil
}

func (b *halBackend) init(words []uint32) error {
	var err error
	b.shader, err = b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "vdec_convert",
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create convert shader module: %w", err)
	}

	b.bgLayout, err = b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "vdec_convert_bgl",
		Entries: convertLayoutEntries(),
	})
	if err != nil {
		return fmt.Errorf("wgpu: create convert bind group layout: %w", err)
	}

	b.plLayout, err = b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "vdec_convert_pl",
		BindGroupLayouts: []hal.BindGroupLayout{b.bgLayout},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create convert pipeline layout: %w", err)
	}

	b.pipeline, err = b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  "vdec_convert",
		Layout: b.plLayout,
		Compute: hal.ComputeState{
			Module:     b.shader,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create convert pipeline: %w", err)
	}

	b.sampler, err = b.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "vdec_chroma",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		LodMaxClamp:  1,
		Anisotropy:   1,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create chroma sampler: %w", err)
	}
	return nil
}

func convertLayoutEntries() []gputypes.BindGroupLayoutEntry {
	plane := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		}
	}
	return []gputypes.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: gputypes.ShaderStageCompute,
			Buffer: &gputypes.BufferBindingLayout{
				Type:           gputypes.BufferBindingTypeUniform,
				MinBindingSize: paramsSize,
			},
		},
		plane(1),
		plane(2),
		plane(3),
		{
			Binding:    4,
			Visibility: gputypes.ShaderStageCompute,
			Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
		},
		{
			Binding:    5,
			Visibility: gputypes.ShaderStageCompute,
			StorageTexture: &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessWriteOnly,
				Format:        gputypes.TextureFormatRGBA8Unorm,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		},
	}
}

func (b *halBackend) createTexture(label string, format gpu.Format, width, height, mips uint32) (hal.Texture, error) {
	tf, ok := textureFormat(format)
	if !ok {
		return nil, fmt.Errorf("wgpu: no texture format for %v", format)
	}
	usage := gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding
	if storable(format) {
		usage |= gputypes.TextureUsageCopySrc | gputypes.TextureUsageStorageBinding
	}
	return b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: mips,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        tf,
		Usage:         usage,
	})
}

func (b *halBackend) destroyTexture(tex hal.Texture) {
	b.device.DestroyTexture(tex)
}

func (b *halBackend) writeTexture(tex hal.Texture, level uint32, data []byte, bytesPerRow, width, height uint32) error {
	return b.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex, MipLevel: level},
		data,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: bytesPerRow, RowsPerImage: height},
		&hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
	)
}

// beginLocked opens the batch conversions are recorded into.
func (b *halBackend) beginLocked() (*batch, error) {
	if b.current != nil {
		return b.current, nil
	}
	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "vdec_convert"})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("vdec_convert"); err != nil {
		encoder.Destroy()
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	b.current = &batch{encoder: encoder}
	return b.current, nil
}

func (b *halBackend) view(bt *batch, tex hal.Texture) (hal.TextureView, error) {
	v, err := b.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "vdec_convert_view",
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create texture view: %w", err)
	}
	bt.views = append(bt.views, v)
	return v, nil
}

// convert records one compute pass writing mip 0 of dst from planes.
func (b *halBackend) convert(dst hal.Texture, planes []hal.Texture, p *gpu.ConvertParams, width, height uint32) error {
	if len(planes) < 2 || len(planes) > 3 {
		return fmt.Errorf("wgpu: convert with %d planes", len(planes))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	bt, err := b.beginLocked()
	if err != nil {
		return err
	}

	params, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "vdec_convert_params",
		Size:  paramsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create params buffer: %w", err)
	}
	bt.buffers = append(bt.buffers, params)
	if err := b.queue.WriteBuffer(params, 0, encodeParams(p)); err != nil {
		return fmt.Errorf("wgpu: write params: %w", err)
	}

	// The v binding repeats the chroma plane of semi-planar layouts.
	sources := [3]hal.Texture{planes[0], planes[1], planes[len(planes)-1]}
	entries := []gputypes.BindGroupEntry{{
		Binding:  0,
		Resource: gputypes.BufferBinding{Buffer: params.NativeHandle(), Size: paramsSize},
	}}
	for i, tex := range sources {
		v, err := b.view(bt, tex)
		if err != nil {
			return err
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i + 1), //nolint:gosec // at most three planes
			Resource: gputypes.TextureViewBinding{TextureView: v.NativeHandle()},
		})
	}
	out, err := b.view(bt, dst)
	if err != nil {
		return err
	}
	entries = append(entries,
		gputypes.BindGroupEntry{Binding: 4, Resource: gputypes.SamplerBinding{Sampler: b.sampler.NativeHandle()}},
		gputypes.BindGroupEntry{Binding: 5, Resource: gputypes.TextureViewBinding{TextureView: out.NativeHandle()}},
	)

	bg, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "vdec_convert_bg",
		Layout:  b.bgLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create convert bind group: %w", err)
	}
	bt.groups = append(bt.groups, bg)

	bt.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: dst,
		Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll, MipLevelCount: 1},
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageTextureBinding,
			NewUsage: gputypes.TextureUsageStorageBinding,
		},
	}})
	pass := bt.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "vdec_convert"})
	pass.SetPipeline(b.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(workgroups(width), workgroups(height), 1)
	pass.End()
	bt.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: dst,
		Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll, MipLevelCount: 1},
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageStorageBinding,
			NewUsage: gputypes.TextureUsageTextureBinding,
		},
	}})
	return nil
}

func workgroups(n uint32) uint32 {
	return (n + convertWorkgroup - 1) / convertWorkgroup
}

// submit hands the recorded batch to the queue. The token is done once
// the queue reports the submission index complete.
func (b *halBackend) submit() (gpu.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bt := b.current
	b.current = nil
	var cmds []hal.CommandBuffer
	if bt != nil {
		cmd, err := bt.encoder.EndEncoding()
		if err != nil {
			b.free(bt)
			return nil, fmt.Errorf("wgpu: end encoding: %w", err)
		}
		bt.cmd = cmd
		cmds = []hal.CommandBuffer{cmd}
	}

	index, err := b.queue.Submit(cmds)
	if err != nil {
		if bt != nil {
			b.free(bt)
		}
		return nil, fmt.Errorf("wgpu: submit: %w", err)
	}
	if bt != nil {
		bt.index = index
		b.inflight = append(b.inflight, bt)
	}
	b.reclaimLocked(b.queue.PollCompleted())
	return &submissionToken{queue: b.queue, index: index}, nil
}

// reclaimLocked frees every batch the queue finished.
func (b *halBackend) reclaimLocked(completed uint64) {
	n := 0
	for _, bt := range b.inflight {
		if bt.index <= completed {
			b.free(bt)
			continue
		}
		b.inflight[n] = bt
		n++
	}
	clear(b.inflight[n:])
	b.inflight = b.inflight[:n]
}

func (b *halBackend) free(bt *batch) {
	if bt.cmd != nil {
		b.device.FreeCommandBuffer(bt.cmd)
	}
	for _, g := range bt.groups {
		b.device.DestroyBindGroup(g)
	}
	for _, v := range bt.views {
		b.device.DestroyTextureView(v)
	}
	for _, buf := range bt.buffers {
		b.device.DestroyBuffer(buf)
	}
	if bt.encoder != nil {
		bt.encoder.Destroy()
	}
}

func (b *halBackend) destroyPipeline() {
	if b.sampler != nil {
		b.device.DestroySampler(b.sampler)
		b.sampler = nil
	}
	if b.pipeline != nil {
		b.device.DestroyComputePipeline(b.pipeline)
		b.pipeline = nil
	}
	if b.plLayout != nil {
		b.device.DestroyPipelineLayout(b.plLayout)
		b.plLayout = nil
	}
	if b.bgLayout != nil {
		b.device.DestroyBindGroupLayout(b.bgLayout)
		b.bgLayout = nil
	}
	if b.shader != nil {
		b.device.DestroyShaderModule(b.shader)
		b.shader = nil
	}
}

func (b *halBackend) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bt := b.current; bt != nil {
		bt.encoder.DiscardEncoding()
		b.free(bt)
		b.current = nil
	}
	if len(b.inflight) > 0 {
		// A lost device has nothing left in flight either.
		_ = b.device.WaitIdle()
		b.reclaimLocked(^uint64(0))
	}
	b.destroyPipeline()
}

// submissionToken is done once the queue completed index.
type submissionToken struct {
	queue hal.Queue
	index uint64
}

// Wait implements gpu.Token.
func (t *submissionToken) Wait(ctx context.Context) error {
	if t.Done() {
		return nil
	}
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if t.Done() {
				return nil
			}
		}
	}
}

// Done implements gpu.Token.
func (t *submissionToken) Done() bool {
	return t.queue.PollCompleted() >= t.index
}
