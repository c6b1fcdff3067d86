package upload

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/vdec/codec"
	"github.com/gogpu/vdec/gpu"
	"github.com/gogpu/vdec/internal/framepool"
	"github.com/gogpu/vdec/internal/image"
)

// Config describes the video stream an Uploader serves.
type Config struct {
	// Width and Height are the stream dimensions. Frames report their own
	// size when these are zero.
	Width, Height int

	// TimeBase converts frame timestamps to seconds.
	TimeBase float64

	// Color is used for frames that carry no colorimetry of their own.
	Color codec.Colorimetry

	// Mipmaps requests a full mip chain on every RGB image.
	Mipmaps bool
}

// Stats counts task outcomes.
type Stats struct {
	Uploaded uint64
	Dropped  uint64
}

// Uploader runs upload tasks for one decoder.
//
// Run must only be called from the decoder's upload chain: the cached
// layout and parameters are not guarded.
type Uploader struct {
	dev  gpu.Device
	pool *framepool.Pool
	cfg  Config
	log  *slog.Logger

	layout  Layout
	active  bool
	params  *gpu.ConvertParams
	passes  []Pass
	lastPTS float64

	uploaded atomic.Uint64
	dropped  atomic.Uint64
}

// New creates an Uploader that renders through dev into the slots of
// pool. A nil logger discards messages.
func New(dev gpu.Device, pool *framepool.Pool, cfg Config, log *slog.Logger) *Uploader {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Uploader{dev: dev, pool: pool, cfg: cfg, log: log}
}

// Reset discards timestamp state after a flush. A frame without a
// timestamp is presented at pts until one with a timestamp arrives. No
// task may be running.
func (u *Uploader) Reset(pts float64) {
	u.lastPTS = pts
}

// Stats returns the task counters.
func (u *Uploader) Stats() Stats {
	return Stats{Uploaded: u.uploaded.Load(), Dropped: u.dropped.Load()}
}

// Run uploads and converts f into slot index, which must be Locked by
// the caller, and publishes it. Frames that cannot be processed return
// the slot to Idle. Run takes ownership of f.
func (u *Uploader) Run(ctx context.Context, index int, f *codec.VideoFrame) {
	if f.HW != nil {
		sw, err := f.HW.TransferToHost()
		f.HW.Release()
		if err != nil {
			u.log.Error("upload: failed to transfer hardware frame", "slot", index, "err", err)
			u.drop(index)
			return
		}
		sw.PTS = f.PTS
		if sw.Color == (codec.Colorimetry{}) {
			sw.Color = f.Color
		}
		f = sw
	}

	if err := u.run(ctx, index, f); err != nil {
		u.log.Error("upload: frame dropped", "slot", index, "format", f.Format, "err", err)
		u.drop(index)
		return
	}
	u.uploaded.Add(1)
}

func (u *Uploader) drop(index int) {
	u.dropped.Add(1)
	if err := u.pool.Abandon(index); err != nil {
		u.log.Warn("upload: abandon", "slot", index, "err", err)
	}
}

func (u *Uploader) run(ctx context.Context, index int, f *codec.VideoFrame) error {
	if !u.active || u.layout.Format != f.Format {
		u.setup(index, f)
	}

	w, h := u.cfg.Width, u.cfg.Height
	if w <= 0 || h <= 0 {
		w, h = f.Width, f.Height
	}

	slot := u.pool.Slot(index)
	if err := u.ensureImages(slot, w, h); err != nil {
		return err
	}

	if slot.FromClient != nil {
		if err := slot.FromClient.Wait(ctx); err != nil {
			return fmt.Errorf("wait for consumer: %w", err)
		}
		slot.FromClient = nil
	}

	pc := &PassContext{
		Ctx:    ctx,
		Device: u.dev,
		Slot:   slot,
		Frame:  f,
		Layout: &u.layout,
		Params: u.params,
	}
	for _, p := range u.passes {
		if err := p.Execute(pc); err != nil {
			return fmt.Errorf("%s pass: %w", p.Name(), err)
		}
	}

	tok, err := u.dev.Submit(ctx)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	pts := u.lastPTS
	if f.PTS != codec.NoPTS {
		pts = float64(f.PTS) * u.cfg.TimeBase
	}
	u.lastPTS = pts
	return u.pool.Publish(index, pts, tok)
}

// setup switches to the layout of f. Plane images of other slots are
// released since they no longer match.
func (u *Uploader) setup(index int, f *codec.VideoFrame) {
	if u.active {
		u.log.Debug("upload: pixel format changed", "from", u.layout.Format, "to", f.Format)
		u.pool.ResetPlanes(u.dev, index)
	}

	u.layout = Classify(f.Format)
	u.active = true
	u.passes = Passes(&u.layout, u.cfg.Mipmaps)
	u.params = nil
	if !u.layout.Supported() {
		u.log.Warn("upload: unsupported pixel format, frames will be magenta", "format", f.Format)
		return
	}

	c := f.Color
	if c == (codec.Colorimetry{}) {
		c = u.cfg.Color
	}
	h := u.cfg.Height
	if h <= 0 {
		h = f.Height
	}
	p, known := NewParams(&u.layout, c, h)
	if !known {
		u.log.Warn("upload: unknown color space, assuming BT.709", "space", c.Space)
	}
	u.params = p
}

// ensureImages creates the slot's plane and RGB images when missing and
// replaces any that no longer match the layout.
func (u *Uploader) ensureImages(s *framepool.Slot, w, h int) error {
	if len(s.Planes) != u.layout.Planes {
		u.destroyPlanes(s)
		s.Planes = make([]gpu.Image, u.layout.Planes)
	}
	for i := range u.layout.Planes {
		pw, ph := u.layout.PlaneSize(i, w, h)
		if img := s.Planes[i]; img != nil {
			if img.Format() == u.layout.Formats[i] && img.Width() == pw && img.Height() == ph {
				continue
			}
			u.dev.DestroyImage(img)
			s.Planes[i] = nil
		}
		img, err := u.dev.CreateImage(gpu.ImageDesc{
			Label:  fmt.Sprintf("vdec plane %d", i),
			Width:  pw,
			Height: ph,
			Format: u.layout.Formats[i],
		})
		if err != nil {
			return fmt.Errorf("create plane %d: %w", i, err)
		}
		s.Planes[i] = img
	}

	if s.RGB != nil && (s.RGB.Width() != w || s.RGB.Height() != h) {
		u.dev.DestroyImage(s.RGB)
		s.RGB = nil
	}
	if s.RGB == nil {
		levels := 1
		if u.cfg.Mipmaps {
			levels = image.NumMipLevels(w, h)
		}
		img, err := u.dev.CreateImage(gpu.ImageDesc{
			Label:     "vdec rgb",
			Width:     w,
			Height:    h,
			Format:    gpu.FormatRGBA8UnormSRGB,
			MipLevels: levels,
		})
		if err != nil {
			return fmt.Errorf("create rgb image: %w", err)
		}
		s.RGB = img
	}
	return nil
}

func (u *Uploader) destroyPlanes(s *framepool.Slot) {
	for _, img := range s.Planes {
		if img != nil {
			u.dev.DestroyImage(img)
		}
	}
	s.Planes = nil
}
