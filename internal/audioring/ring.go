// Package audioring implements the lock-free ring of decoded audio frames
// that feeds a real-time mixer.
//
// One producer (the decode goroutine) fills frames with AcquireWriteFrame
// and SubmitWriteFrame. One consumer (the mixer callback) drains them with
// AccumulateSamples, which only uses atomics and never blocks or allocates.
package audioring

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/gogpu/vdec/codec"
	"github.com/gogpu/vdec/mixer"
)

const (
	// Frames is the ring capacity in decoded frames.
	Frames = 64

	// HighWatermark is the buffered frame count above which the producer
	// should stop decoding.
	HighWatermark = 48

	// startGate is the amount of audio buffered before output starts.
	startGate = 0.05
)

// Clock returns a monotonic timestamp in nanoseconds.
type Clock func() int64

var epoch = time.Now()

// MonotonicClock reads the process monotonic clock.
func MonotonicClock() int64 { return int64(time.Since(epoch)) }

type progress struct {
	pts       atomic.Uint64 // float64 bits, seconds
	sampledNs atomic.Int64
}

// Ring is a 64 frame audio ring implementing mixer.Stream.
type Ring struct {
	rate      float32
	channels  int
	timebase  float64
	invRateNs float64
	now       Clock

	frames [Frames]codec.AudioFrame

	writeCount       atomic.Uint32
	readCount        atomic.Uint32
	writeFramesCount atomic.Uint32
	readFramesCount  atomic.Uint32
	complete         atomic.Bool
	disposed         atomic.Bool

	progress [Frames]progress
	ptsIndex atomic.Uint32

	// Consumer state.
	packetFrames int
	running      bool
}

// New creates a ring for a stream of channels channels at rate Hz whose
// timestamps are in units of timebase seconds. A nil clock uses
// MonotonicClock.
func New(rate float32, channels int, timebase float64, clock Clock) *Ring {
	if clock == nil {
		clock = MonotonicClock
	}
	r := &Ring{
		rate:      rate,
		channels:  channels,
		timebase:  timebase,
		invRateNs: 1e9 / float64(rate),
		now:       clock,
	}
	for i := range r.progress {
		r.progress[i].pts.Store(math.Float64bits(-1))
	}
	return r
}

// AcquireWriteFrame returns the frame at the write position. Calling it
// again before SubmitWriteFrame returns the same frame. It returns nil
// when the ring is full.
func (r *Ring) AcquireWriteFrame() *codec.AudioFrame {
	w := r.writeCount.Load()
	if w-r.readCount.Load() >= Frames {
		return nil
	}
	return &r.frames[w%Frames]
}

// SubmitWriteFrame publishes the frame returned by AcquireWriteFrame.
func (r *Ring) SubmitWriteFrame() {
	w := r.writeCount.Load()
	r.writeFramesCount.Add(uint32(r.frames[w%Frames].NumSamples))
	r.writeCount.Store(w + 1)
}

// MarkComplete records that no more frames will be written.
func (r *Ring) MarkComplete() { r.complete.Store(true) }

// Complete reports whether MarkComplete was called.
func (r *Ring) Complete() bool { return r.complete.Load() }

// BufferedFrames returns the number of decoded frames not yet consumed.
func (r *Ring) BufferedFrames() uint32 {
	return r.writeCount.Load() - r.readCount.Load()
}

// BufferedSamples returns the number of samples per channel not yet
// consumed.
func (r *Ring) BufferedSamples() uint32 {
	return r.writeFramesCount.Load() - r.readFramesCount.Load()
}

// Latest returns the most recently published timestamp in seconds and the
// clock reading it was sampled at. The timestamp is negative before the
// first sample was played.
func (r *Ring) Latest() (pts float64, sampledNs int64) {
	p := &r.progress[(r.ptsIndex.Load()-1)%Frames]
	return math.Float64frombits(p.pts.Load()), p.sampledNs.Load()
}

// MarkUncorked re-stamps the latest timestamp to now, so time spent paused
// does not count as playback.
func (r *Ring) MarkUncorked() {
	p := &r.progress[(r.ptsIndex.Load()-1)%Frames]
	if math.Float64frombits(p.pts.Load()) >= 0 {
		p.sampledNs.Store(r.now())
	}
}

// Setup implements mixer.Stream.
func (r *Ring) Setup(_ float32, channels int, _ int) bool {
	return channels == r.channels
}

// Channels implements mixer.Stream.
func (r *Ring) Channels() int { return r.channels }

// SampleRate implements mixer.Stream.
func (r *Ring) SampleRate() float32 { return r.rate }

// Dispose implements mixer.Stream.
func (r *Ring) Dispose() { r.disposed.Store(true) }

// Disposed reports whether the mixer released the ring.
func (r *Ring) Disposed() bool { return r.disposed.Load() }

// AccumulateSamples implements mixer.Stream.
//
// Until more than 50 ms are buffered it produces silence and reports n
// frames consumed (0 once the stream is complete). After that, while the
// stream is incomplete it always reports n so underruns play silence; a
// complete stream reports what it actually produced, retiring it once the
// ring runs dry.
func (r *Ring) AccumulateSamples(out [][]float32, gain []float32, n int) int {
	written := r.writeCount.Load()
	if !r.running {
		if float32(r.writeFramesCount.Load()) <= r.rate*startGate {
			if r.complete.Load() {
				return 0
			}
			return n
		}
		r.running = true
	}

	offset := 0
	index := r.readCount.Load()
	for offset < n && index != written {
		frame := &r.frames[index%Frames]
		if r.packetFrames >= frame.NumSamples {
			r.packetFrames = 0
			index++
			continue
		}
		k := min(frame.NumSamples-r.packetFrames, n-offset)

		if r.packetFrames == 0 {
			pi := r.ptsIndex.Load()
			p := &r.progress[pi%Frames]
			p.pts.Store(math.Float64bits(float64(frame.PTS) * r.timebase))
			p.sampledNs.Store(r.now() + int64(float64(offset)*r.invRateNs))
			r.ptsIndex.Store(pi + 1)
		}

		r.mix(out, gain, frame, offset, k)
		r.packetFrames += k
		offset += k
	}

	r.readCount.Store(index)
	r.readFramesCount.Add(uint32(offset))

	if r.complete.Load() {
		return offset
	}
	return n
}

func (r *Ring) mix(out [][]float32, gain []float32, f *codec.AudioFrame, offset, k int) {
	var at func([]byte, int) float32
	switch f.Format {
	case codec.SampleFormatFLT, codec.SampleFormatFLTP:
		at = f32At
	case codec.SampleFormatS32, codec.SampleFormatS32P:
		at = s32At
	case codec.SampleFormatS16, codec.SampleFormatS16P:
		at = s16At
	default:
		return
	}

	if f.Format.Planar() || r.channels == 1 {
		for c := range r.channels {
			accumulate(out[c][offset:], f.Data[c], r.packetFrames, gain[c], k, at)
		}
		return
	}
	accumulateStereo(out[0][offset:], out[1][offset:], f.Data[0], r.packetFrames, gain, k, at)
}

var _ mixer.Stream = (*Ring)(nil)
