// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vdeccanvas

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/vdec"
	"github.com/gogpu/vdec/gpu"
)

// Common errors returned by Player operations.
var (
	// ErrPlayerClosed is returned when operations are attempted on a closed player.
	ErrPlayerClosed = errors.New("vdeccanvas: player is closed")

	// ErrNilDecoder is returned when New is called without a decoder.
	ErrNilDecoder = errors.New("vdeccanvas: nil decoder")

	// ErrNoFrame is returned by RenderTo before the first frame was presented.
	ErrNoFrame = errors.New("vdeccanvas: no frame presented yet")

	// ErrInvalidRenderer is returned when the draw context has no texture creator.
	ErrInvalidRenderer = errors.New("vdeccanvas: draw context has no texture creator")

	// ErrInvalidTexture is returned when the created texture cannot be drawn.
	ErrInvalidTexture = errors.New("vdeccanvas: texture is not a gpucontext.Texture")
)

// textureDestroyer matches gogpu.Texture.Destroy.
type textureDestroyer interface {
	Destroy()
}

// Player presents the frames of one decoder.
type Player struct {
	dec    *vdec.Decoder
	reader gpu.Reader

	frame vdec.VideoFrame
	held  bool
	ended bool

	// Host clock used when the decoder has no audio stream.
	base      float64
	origin    float64
	hasOrigin bool

	pixels  []byte
	texture any
	dirty   bool
	closed  bool
}

// New creates a player for dec. reader must be the device passed to
// dec.BeginDeviceContext; both gpu/software and gpu/wgpu devices qualify.
func New(dec *vdec.Decoder, reader gpu.Reader) (*Player, error) {
	if dec == nil {
		return nil, ErrNilDecoder
	}
	if reader == nil {
		return nil, fmt.Errorf("vdeccanvas: nil reader")
	}
	return &Player{dec: dec, reader: reader}, nil
}

// Width returns the video width in pixels.
func (p *Player) Width() int { return p.dec.Width() }

// Height returns the video height in pixels.
func (p *Player) Height() int { return p.dec.Height() }

// PTS returns the presentation time of the current frame, or -1.
func (p *Player) PTS() float64 {
	if !p.held {
		return -1
	}
	return p.frame.PTS
}

// Ended reports whether the decoder reached the end of the stream.
func (p *Player) Ended() bool { return p.ended }

// Pixels returns the RGBA pixels of the current frame. The slice is reused
// by later updates.
func (p *Player) Pixels() []byte { return p.pixels }

// Clock returns the playback position in seconds at host time elapsed.
func (p *Player) Clock(elapsed float64) float64 {
	if t := p.dec.EstimatedAudioPlaybackTimestamp(elapsed); t >= 0 {
		return t
	}
	if !p.hasOrigin {
		p.origin = elapsed
		p.hasOrigin = true
	}
	return p.base + elapsed - p.origin
}

// Update presents the frame due at host time elapsed seconds. It acquires
// frames until the newest one reaches the clock, releasing the ones it
// skips, and reports whether the presented frame changed.
func (p *Player) Update(ctx context.Context, elapsed float64) (bool, error) {
	if p.closed {
		return false, ErrPlayerClosed
	}
	clock := p.Clock(elapsed)

	changed := false
	for !p.held || p.frame.PTS < clock {
		f, res := p.dec.TryAcquireVideoFrame()
		if res == vdec.FrameEndOfStream {
			p.ended = true
			break
		}
		if res != vdec.FrameAcquired {
			break
		}
		if err := p.release(); err != nil {
			return changed, err
		}
		p.frame, p.held = f, true
		changed = true
	}
	if !changed {
		return false, nil
	}

	if err := p.frame.Token.Wait(ctx); err != nil {
		return true, fmt.Errorf("vdeccanvas: wait for frame: %w", err)
	}
	px, err := p.reader.ReadImage(p.frame.Image)
	if err != nil {
		return true, fmt.Errorf("vdeccanvas: read frame: %w", err)
	}
	p.pixels = px
	p.dirty = true
	return true, nil
}

func (p *Player) release() error {
	if !p.held {
		return nil
	}
	p.held = false
	if err := p.dec.ReleaseVideoFrame(p.frame.Index, nil); err != nil && !errors.Is(err, vdec.ErrNotAcquired) {
		return fmt.Errorf("vdeccanvas: release frame: %w", err)
	}
	return nil
}

// Seek repositions the decoder. The current frame is dropped; it became
// invalid with the seek.
func (p *Player) Seek(ts float64) error {
	if p.closed {
		return ErrPlayerClosed
	}
	if err := p.dec.Seek(ts); err != nil {
		return err
	}
	p.held = false
	p.ended = false
	p.base = max(ts, 0)
	p.hasOrigin = false
	return nil
}

// RenderTo draws the current frame at (x, y). The texture is created on
// first use and updated whenever Update presented a new frame.
func (p *Player) RenderTo(dc gpucontext.TextureDrawer, x, y float32) error {
	if p.closed {
		return ErrPlayerClosed
	}
	if p.pixels == nil {
		return ErrNoFrame
	}

	if p.texture == nil {
		creator := dc.TextureCreator()
		if creator == nil {
			return ErrInvalidRenderer
		}
		tex, err := creator.NewTextureFromRGBA(p.dec.Width(), p.dec.Height(), p.pixels)
		if err != nil {
			return fmt.Errorf("vdeccanvas: NewTextureFromRGBA failed: %w", err)
		}
		p.texture = tex
		p.dirty = false
	} else if p.dirty {
		if updater, ok := p.texture.(gpucontext.TextureUpdater); ok {
			if err := updater.UpdateData(p.pixels); err != nil {
				return fmt.Errorf("vdeccanvas: texture update failed: %w", err)
			}
		}
		p.dirty = false
	}

	gpuTex, ok := p.texture.(gpucontext.Texture)
	if !ok {
		return ErrInvalidTexture
	}
	return dc.DrawTexture(gpuTex, x, y)
}

// Close releases the current frame and destroys the texture. Close is
// idempotent.
func (p *Player) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	err := p.release()
	if d, ok := p.texture.(textureDestroyer); ok {
		d.Destroy()
	}
	p.texture = nil
	p.pixels = nil
	return err
}
