package vdec

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gogpu/vdec/codec"
	"github.com/gogpu/vdec/internal/audioring"
	"github.com/gogpu/vdec/internal/framepool"
	"github.com/gogpu/vdec/internal/pacing"
	"github.com/gogpu/vdec/mixer"
)

// maxSendAttempts bounds how often a packet is offered to a decoder that
// keeps answering ErrAgain.
const maxSendAttempts = 32

// run is the decode goroutine.
func (d *Decoder) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		if !d.pool.WaitProgress(d.shouldIterate, d.sleepBudget) {
			return
		}
		if !d.iterate(ctx) {
			// Uploads must land before acquire can observe end of stream.
			if err := d.chain.Signal().Wait(ctx, d.chain.Issued()); err != nil {
				d.log.Debug("vdec: end of stream without draining uploads", "err", err)
			}
			d.pool.Finish()
			d.log.Info("vdec: end of stream")
			return
		}
	}
}

// shouldIterate is the pacing decision. It runs under the pool monitor.
func (d *Decoder) shouldIterate(v framepool.View) bool {
	in := pacing.Input{
		ConsumerBlocked: v.ConsumerBlocked,
		HasIdleSlot:     v.HasIdle,
	}
	if ring := d.ring.Load(); ring != nil {
		in.HasAudio = true
		in.AudioPlaying = d.audioPlaying()
		in.BufferedFrames = ring.BufferedFrames()
		in.BufferedSamples = ring.BufferedSamples()
		in.SampleRate = d.audioInfo.SampleRate
	}
	return pacing.Decide(in)
}

// sleepBudget bounds the pacing wait while audio is playing, so the
// goroutine wakes before the ring drains.
func (d *Decoder) sleepBudget() (time.Duration, bool) {
	ring := d.ring.Load()
	if ring == nil || !d.audioPlaying() {
		return 0, false
	}
	return pacing.SleepBudget(ring.BufferedSamples(), d.audioInfo.SampleRate), true
}

func (d *Decoder) audioPlaying() bool {
	id := mixer.StreamID(d.streamID.Load())
	return id != 0 && d.opts.mixer.StreamState(id) == mixer.StreamPlaying
}

// iterate reads one packet, or drains one unit per decoder once the
// container is exhausted. It reports false when decoding is over.
func (d *Decoder) iterate(ctx context.Context) bool {
	d.iter.Lock()
	defer d.iter.Unlock()

	if d.videoEOF && (d.audioEOF || d.audio == nil) {
		return false
	}

	if !d.flushing {
		pkt, err := d.demux.ReadPacket()
		switch {
		case err == nil:
			switch {
			case pkt.StreamIndex == d.videoIndex:
				if !d.decodeVideo(ctx, pkt) {
					d.videoEOF = true
				}
			case d.audio != nil && pkt.StreamIndex == d.audioIndex:
				if !d.decodeAudio(pkt) {
					d.audioEOF = true
				}
			}
		case errors.Is(err, io.EOF):
			d.startDrain()
		default:
			d.log.Warn("vdec: read failed, draining decoders", "err", err)
			d.startDrain()
		}
	}

	if d.flushing && !d.videoEOF && !d.decodeVideo(ctx, nil) {
		d.videoEOF = true
	}
	if d.flushing && !d.audioEOF && d.audio != nil && !d.decodeAudio(nil) {
		d.audioEOF = true
	}
	return true
}

// startDrain tells both decoders no more packets follow.
func (d *Decoder) startDrain() {
	if err := d.video.SendPacket(nil); err != nil {
		d.log.Debug("vdec: video drain", "err", err)
	}
	if d.audio != nil {
		if err := d.audio.SendPacket(nil); err != nil {
			d.log.Debug("vdec: audio drain", "err", err)
		}
	}
	d.flushing = true
	d.log.Debug("vdec: draining decoders")
}

// decodeVideo feeds pkt (nil while draining) and processes at most one
// decoded picture. It reports false on a hard error or end of stream.
func (d *Decoder) decodeVideo(ctx context.Context, pkt *codec.Packet) bool {
	if pkt != nil {
		for attempt := 0; ; attempt++ {
			err := d.video.SendPacket(pkt)
			if err == nil {
				break
			}
			if !errors.Is(err, codec.ErrAgain) || attempt == maxSendAttempts {
				d.log.Error("vdec: failed to send video packet", "pts", pkt.PTS, "err", err)
				return false
			}
			// The decoder is full; take a picture out before offering again.
			if !d.receiveVideo(ctx) {
				return false
			}
		}
	}
	return d.receiveVideo(ctx)
}

func (d *Decoder) receiveVideo(ctx context.Context) bool {
	f, err := d.video.ReceiveFrame()
	if err != nil {
		return errors.Is(err, codec.ErrAgain)
	}
	return d.processVideoFrame(ctx, f)
}

// processVideoFrame locks a slot for f and issues its upload task.
func (d *Decoder) processVideoFrame(ctx context.Context, f *codec.VideoFrame) bool {
	if f.HW != nil && !d.hwLogged {
		d.hwLogged = true
		d.log.Info("vdec: decoding to hardware surfaces")
	}

	up := d.uploader.Load()
	if up == nil {
		discard(f)
		return false
	}
	index, err := d.pool.AcquireForDecode(ctx, d.chain)
	if err != nil {
		discard(f)
		if !errors.Is(err, context.Canceled) && !errors.Is(err, framepool.ErrStalled) {
			d.log.Error("vdec: no slot for decoded frame", "err", err)
		}
		return false
	}

	d.chain.Issue(func() {
		up.Run(ctx, index, f)
	})
	return true
}

// decodeAudio feeds pkt (nil while draining) and moves at most one
// decoded frame into the ring. It reports false on a hard error or end
// of stream.
func (d *Decoder) decodeAudio(pkt *codec.Packet) bool {
	ring := d.ring.Load()
	if ring == nil {
		return false
	}

	if pkt != nil {
		for attempt := 0; ; attempt++ {
			err := d.audio.SendPacket(pkt)
			if err == nil {
				break
			}
			if !errors.Is(err, codec.ErrAgain) || attempt == maxSendAttempts {
				d.log.Error("vdec: failed to send audio packet", "pts", pkt.PTS, "err", err)
				return false
			}
			if ring.AcquireWriteFrame() == nil {
				d.log.Warn("vdec: audio ring full, dropping packet", "pts", pkt.PTS)
				return true
			}
			if !d.receiveAudio(ring, false) {
				return false
			}
		}
	}
	return d.receiveAudio(ring, pkt == nil)
}

func (d *Decoder) receiveAudio(ring *audioring.Ring, draining bool) bool {
	frame := ring.AcquireWriteFrame()
	if frame == nil {
		// Full. Pacing holds the loop until the mixer catches up.
		return true
	}
	err := d.audio.ReceiveFrame(frame)
	if err == nil {
		ring.SubmitWriteFrame()
		return true
	}
	if draining {
		ring.MarkComplete()
	}
	return errors.Is(err, codec.ErrAgain)
}

// discard releases a frame that will not be uploaded.
func discard(f *codec.VideoFrame) {
	if f.HW != nil {
		f.HW.Release()
	}
}
