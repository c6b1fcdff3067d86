// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package wgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/naga"

	"github.com/gogpu/vdec/gpu"
)

// convertWGSL converts one YUV frame into an sRGB-encoded RGBA image. It
// mirrors software.Convert texel for texel: the uniform block carries the
// fields of gpu.ConvertParams.
const convertWGSL = `
struct Params {
    yuv_to_rgb: mat4x4<f32>,
    primaries: mat4x4<f32>,
    chroma_offset: vec2<f32>,
    rescale: f32,
    planes: u32,
    swap_uv: u32,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var plane_y: texture_2d<f32>;
@group(0) @binding(2) var plane_u: texture_2d<f32>;
@group(0) @binding(3) var plane_v: texture_2d<f32>;
@group(0) @binding(4) var chroma_sampler: sampler;
@group(0) @binding(5) var dst: texture_storage_2d<rgba8unorm, write>;

fn bt1886_to_linear(v: f32) -> f32 {
    return pow(max(v, 0.0), 2.4);
}

fn linear_to_srgb(v: f32) -> f32 {
    let c = clamp(v, 0.0, 1.0);
    if (c <= 0.0031308) {
        return c * 12.92;
    }
    return 1.055 * pow(c, 1.0 / 2.4) - 0.055;
}

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let size = textureDimensions(dst);
    if (id.x >= size.x || id.y >= size.y) {
        return;
    }
    let inv = vec2<f32>(1.0 / f32(size.x), 1.0 / f32(size.y));
    let pos = vec2<f32>(f32(id.x), f32(id.y));

    let luma_uv = (pos + vec2<f32>(0.5, 0.5)) * inv;
    let chroma_uv = (pos + params.chroma_offset) * inv;

    let y = textureSampleLevel(plane_y, chroma_sampler, luma_uv, 0.0).r * params.rescale;
    var cb = 0.0;
    var cr = 0.0;
    if (params.planes == 2u) {
        let c = textureSampleLevel(plane_u, chroma_sampler, chroma_uv, 0.0);
        cb = c.r * params.rescale;
        cr = c.g * params.rescale;
        if (params.swap_uv != 0u) {
            let t = cb;
            cb = cr;
            cr = t;
        }
    } else {
        cb = textureSampleLevel(plane_u, chroma_sampler, chroma_uv, 0.0).r * params.rescale;
        cr = textureSampleLevel(plane_v, chroma_sampler, chroma_uv, 0.0).r * params.rescale;
    }

    let rgb = (params.yuv_to_rgb * vec4<f32>(y, cb, cr, 1.0)).xyz;
    let lin_rgb = vec3<f32>(bt1886_to_linear(rgb.x), bt1886_to_linear(rgb.y), bt1886_to_linear(rgb.z));
    let mapped = (params.primaries * vec4<f32>(lin_rgb, 0.0)).xyz;
    let result = vec4<f32>(linear_to_srgb(mapped.x), linear_to_srgb(mapped.y), linear_to_srgb(mapped.z), 1.0);
    textureStore(dst, vec2<i32>(i32(id.x), i32(id.y)), result);
}
`

// CompileConvertShader compiles the YUV conversion shader to SPIR-V words.
func CompileConvertShader() ([]uint32, error) {
	spirv, err := naga.Compile(convertWGSL)
	if err != nil {
		return nil, fmt.Errorf("wgpu: compile convert shader: %w", err)
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("wgpu: convert shader is %d bytes, not whole words", len(spirv))
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	return words, nil
}

// paramsSize is the size of the Params uniform block, padded to its
// 16 byte alignment.
const paramsSize = 160

// encodeParams lays p out as the Params uniform block. Matrices are
// column-major on both sides.
func encodeParams(p *gpu.ConvertParams) []byte {
	buf := make([]byte, paramsSize)
	put := func(off int, v float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
	}
	for c := range 4 {
		for r := range 4 {
			put((c*4+r)*4, p.YUVToRGB[c][r])
		}
	}
	for c := range 3 {
		for r := range 3 {
			put(64+(c*4+r)*4, p.PrimaryConversion[c][r])
		}
	}
	put(64+15*4, 1)
	put(128, p.ChromaOffset[0])
	put(132, p.ChromaOffset[1])
	put(136, p.UnormRescale)
	binary.LittleEndian.PutUint32(buf[140:], uint32(p.Planes)) //nolint:gosec // two or three planes
	if p.SwapUV {
		binary.LittleEndian.PutUint32(buf[144:], 1)
	}
	return buf
}
