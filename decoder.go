package vdec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gogpu/vdec/codec"
	"github.com/gogpu/vdec/gpu"
	"github.com/gogpu/vdec/internal/audioring"
	"github.com/gogpu/vdec/internal/framepool"
	"github.com/gogpu/vdec/internal/parallel"
	"github.com/gogpu/vdec/internal/upload"
	"github.com/gogpu/vdec/mixer"
)

// Scheduler runs upload tasks. It reports false when it did not accept
// the work, in which case the task runs on the decode goroutine.
type Scheduler interface {
	Submit(fn func()) bool
}

// VideoFrame is a decoded frame held by the consumer.
//
// Image may be sampled once Token is done. The frame must be returned
// with ReleaseVideoFrame. Frames still held when the decoder is stopped,
// seeks or ends its device context become invalid.
type VideoFrame struct {
	Index int
	Image gpu.Image
	Token gpu.Token

	// PTS is the presentation time in seconds.
	PTS float64
}

// AcquireResult is the outcome of TryAcquireVideoFrame.
type AcquireResult int

// TryAcquireVideoFrame results.
const (
	FrameNotReady AcquireResult = iota
	FrameAcquired
	FrameEndOfStream
)

// String returns the result name.
func (r AcquireResult) String() string {
	switch r {
	case FrameAcquired:
		return "acquired"
	case FrameEndOfStream:
		return "end of stream"
	default:
		return "not ready"
	}
}

// Decoder plays one media file: a decode goroutine feeds decoded video
// into a pool of GPU images and decoded audio into a mixer stream.
//
// Control methods (Play, Stop, Seek, SetPaused, the device context
// methods and Close) are serialized. The acquire and timestamp methods
// may be called from a consumer goroutine concurrently with them.
type Decoder struct {
	opts    options
	log     *slog.Logger
	session uuid.UUID

	demux      codec.Demuxer
	video      codec.VideoDecoder
	audio      codec.AudioDecoder
	videoInfo  codec.StreamInfo
	audioInfo  codec.StreamInfo
	videoIndex int
	audioIndex int

	pool  *framepool.Pool
	chain *parallel.Chain

	ctl    sync.Mutex
	dev    gpu.Device
	done   chan struct{}
	cancel context.CancelFunc
	closed bool

	uploader atomic.Pointer[upload.Uploader]
	ring     atomic.Pointer[audioring.Ring]
	streamID atomic.Uint64
	running  atomic.Bool
	paused   atomic.Bool
	smoother ptsSmoother

	// Decode state, guarded by iter.
	iter     sync.Mutex
	videoEOF bool
	audioEOF bool
	flushing bool
	hwLogged bool

	// origin is the last seek target. Frames without a timestamp decoded
	// before any other frame are presented at it.
	origin float64
}

// Open opens the container at path and creates decoders for its first
// video stream and, when a mixer is configured, its first audio stream.
func Open(path string, opts ...Option) (*Decoder, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}

	demux, err := o.registry.OpenDemuxer(path)
	if err != nil {
		return nil, fmt.Errorf("vdec: open %s: %w", path, err)
	}
	d, err := newDecoder(demux, o)
	if err != nil {
		_ = demux.Close()
		return nil, err
	}
	return d, nil
}

// NewDecoder creates a decoder reading from demux, which it takes
// ownership of: demux is closed with the decoder, or right away when
// NewDecoder fails. Codecs are resolved as in Open.
func NewDecoder(demux codec.Demuxer, opts ...Option) (*Decoder, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}
	d, err := newDecoder(demux, o)
	if err != nil {
		_ = demux.Close()
		return nil, err
	}
	return d, nil
}

func newDecoder(demux codec.Demuxer, o options) (*Decoder, error) {
	if o.clock == nil {
		o.clock = Clock(audioring.MonotonicClock)
	}
	d := &Decoder{
		opts:       o,
		session:    uuid.New(),
		demux:      demux,
		audioIndex: -1,
	}
	d.log = sessionLogger(d.session.String())

	streams := demux.Streams()
	d.videoIndex = codec.BestStream(streams, codec.MediaVideo)
	if d.videoIndex < 0 {
		return nil, ErrNoVideoStream
	}
	d.videoInfo = streams[d.videoIndex]

	video, err := o.registry.NewVideoDecoder(d.videoInfo)
	if err != nil {
		return nil, fmt.Errorf("vdec: video decoder for %s: %w", d.videoInfo.Codec, err)
	}
	d.video = video

	if o.mixer != nil {
		if err := d.initAudio(streams); err != nil {
			_ = video.Close()
			return nil, err
		}
		propagateLogger(o.mixer, d.log)
	}

	fps := d.videoInfo.FrameRate.Float64()
	if fps <= 0 {
		fps = o.fallbackFPS
	}
	d.pool = framepool.New(framepool.SlotsFor(fps), d.log)
	d.chain = parallel.NewChain(nil, nil)

	d.log.Info("vdec: opened",
		"video", d.videoInfo.Codec,
		"width", d.videoInfo.Width,
		"height", d.videoInfo.Height,
		"fps", fps,
		"slots", d.pool.Len(),
		"audio", d.audio != nil)
	return d, nil
}

// initAudio opens the audio decoder. A container without audio is fine.
func (d *Decoder) initAudio(streams []codec.StreamInfo) error {
	index := codec.BestStream(streams, codec.MediaAudio)
	if index < 0 {
		return nil
	}
	info := streams[index]

	if info.Channels != 1 && info.Channels != 2 {
		return fmt.Errorf("%w: %d channels", ErrUnsupportedAudio, info.Channels)
	}
	switch info.SampleFormat {
	case codec.SampleFormatS16, codec.SampleFormatS16P,
		codec.SampleFormatS32, codec.SampleFormatS32P,
		codec.SampleFormatFLT, codec.SampleFormatFLTP:
	default:
		return fmt.Errorf("%w: sample format %s", ErrUnsupportedAudio, info.SampleFormat)
	}
	if info.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrUnsupportedAudio, info.SampleRate)
	}

	audio, err := d.opts.registry.NewAudioDecoder(info)
	if err != nil {
		return fmt.Errorf("vdec: audio decoder for %s: %w", info.Codec, err)
	}
	d.audio = audio
	d.audioInfo = info
	d.audioIndex = index
	return nil
}

// Width returns the width of the video stream in pixels.
func (d *Decoder) Width() int { return d.videoInfo.Width }

// Height returns the height of the video stream in pixels.
func (d *Decoder) Height() int { return d.videoInfo.Height }

// Session returns the identifier attached to the decoder's log records.
func (d *Decoder) Session() uuid.UUID { return d.session }

// StreamID returns the mixer stream of the current audio stream. ok is
// false while no audio stream is playing.
func (d *Decoder) StreamID() (id mixer.StreamID, ok bool) {
	id = mixer.StreamID(d.streamID.Load())
	return id, id != 0
}

// BeginDeviceContext sets the device frames are rendered through and the
// scheduler upload tasks run on. A nil scheduler runs uploads on the
// decode goroutine.
func (d *Decoder) BeginDeviceContext(dev gpu.Device, sched Scheduler) error {
	if dev == nil {
		return ErrNoDevice
	}
	d.ctl.Lock()
	defer d.ctl.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.done != nil {
		return ErrAlreadyPlaying
	}

	d.dev = dev
	d.chain.SetScheduler(sched)
	d.pool.ResetStats()
	d.uploader.Store(upload.New(dev, d.pool, upload.Config{
		Width:    d.videoInfo.Width,
		Height:   d.videoInfo.Height,
		TimeBase: d.videoInfo.TimeBase.Float64(),
		Color:    d.videoInfo.Color,
		Mipmaps:  d.opts.mipmaps,
	}, d.log))
	return nil
}

// EndDeviceContext stops playback and releases every image of the device.
func (d *Decoder) EndDeviceContext() {
	d.ctl.Lock()
	defer d.ctl.Unlock()
	if err := d.stopLocked(); err != nil && !errors.Is(err, ErrNotPlaying) {
		d.log.Warn("vdec: stop on device end", "err", err)
	}
	d.pool.Reset(d.dev)
	d.dev = nil
	d.uploader.Store(nil)
	d.chain.SetScheduler(nil)
}

// Play starts decoding from the current position.
func (d *Decoder) Play() error {
	d.ctl.Lock()
	defer d.ctl.Unlock()
	return d.playLocked()
}

func (d *Decoder) playLocked() error {
	if d.closed {
		return ErrClosed
	}
	if d.dev == nil {
		return ErrNoDevice
	}
	if d.runningLocked() {
		return ErrAlreadyPlaying
	}

	d.flush()
	d.pool.Start()
	d.beginAudioStream()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done
	d.running.Store(true)
	go d.run(ctx, done)

	d.log.Info("vdec: play")
	return nil
}

// runningLocked reports whether the decode goroutine is alive. A
// goroutine that finished at the end of the stream is reaped.
func (d *Decoder) runningLocked() bool {
	if d.done == nil {
		return false
	}
	select {
	case <-d.done:
		d.cancel()
		d.done = nil
		d.cancel = nil
		d.running.Store(false)
		return false
	default:
		return true
	}
}

// Stop ends decoding, waits for in-flight uploads and releases every
// frame. Frames held by the consumer become invalid.
func (d *Decoder) Stop() error {
	d.ctl.Lock()
	defer d.ctl.Unlock()
	return d.stopLocked()
}

func (d *Decoder) stopLocked() error {
	if d.done == nil {
		return ErrNotPlaying
	}

	d.pool.Teardown()
	d.cancel()
	<-d.done
	d.done = nil
	d.cancel = nil
	d.running.Store(false)

	if err := d.drainUploads(); err != nil {
		return err
	}
	d.flush()
	d.log.Info("vdec: stopped")
	return nil
}

// drainUploads waits until every issued upload task has finished.
func (d *Decoder) drainUploads() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.stopTimeout)
	defer cancel()
	issued := d.chain.Issued()
	if err := d.chain.Signal().Wait(ctx, issued); err != nil {
		d.log.Error("vdec: uploads did not drain", "issued", issued, "done", d.chain.Signal().Value())
		return fmt.Errorf("%w: %d of %d done", ErrUploadTimeout, d.chain.Signal().Value(), issued)
	}
	return nil
}

// Seek repositions to the last keyframe at or before ts seconds. A
// stopped decoder starts playing.
func (d *Decoder) Seek(ts float64) error {
	d.ctl.Lock()
	defer d.ctl.Unlock()
	if d.closed {
		return ErrClosed
	}

	d.iter.Lock()
	defer d.iter.Unlock()

	if err := d.drainUploads(); err != nil {
		return err
	}
	d.pool.Wake()

	ts = max(ts, 0)
	if err := d.demux.SeekKeyframe(ts); err != nil {
		return fmt.Errorf("vdec: seek to %.3fs: %w", ts, err)
	}
	d.origin = ts
	d.log.Info("vdec: seek", "ts", ts)

	if d.runningLocked() {
		d.flush()
		d.beginAudioStream()
		d.pool.Wake()
		return nil
	}
	return d.playLocked()
}

// flush returns every slot to Idle, discards decoder state and ends the
// audio stream. The decode goroutine must not be iterating.
func (d *Decoder) flush() {
	d.pool.Reset(d.dev)
	if up := d.uploader.Load(); up != nil {
		up.Reset(d.origin)
	}
	d.video.Flush()
	if d.audio != nil {
		d.audio.Flush()
	}
	if ring := d.ring.Swap(nil); ring != nil {
		d.opts.mixer.KillStream(mixer.StreamID(d.streamID.Swap(0)))
	}
	d.videoEOF = false
	d.audioEOF = false
	d.flushing = false
}

// beginAudioStream creates a fresh ring and adds it to the mixer.
func (d *Decoder) beginAudioStream() {
	if d.audio == nil {
		return
	}
	ring := audioring.New(
		float32(d.audioInfo.SampleRate),
		d.audioInfo.Channels,
		d.audioInfo.TimeBase.Float64(),
		audioring.Clock(d.opts.clock),
	)
	id := d.opts.mixer.AddStream(ring, !d.paused.Load())
	if id == 0 {
		d.log.Error("vdec: mixer rejected audio stream")
		return
	}
	d.streamID.Store(uint64(id))
	d.ring.Store(ring)
	d.smoother.reset()
}

// SetPaused pauses or resumes audio. Video follows the consumer, which
// is expected to stop acquiring while paused.
func (d *Decoder) SetPaused(paused bool) error {
	d.ctl.Lock()
	defer d.ctl.Unlock()

	d.paused.Store(paused)
	ring := d.ring.Load()
	if ring == nil {
		return nil
	}
	d.smoother.reset()

	id := mixer.StreamID(d.streamID.Load())
	var ok bool
	if paused {
		ok = d.opts.mixer.PauseStream(id)
	} else {
		ring.MarkUncorked()
		ok = d.opts.mixer.PlayStream(id)
		d.pool.Wake()
	}
	if !ok {
		d.log.Error("vdec: failed to set stream state", "paused", paused, "stream", id)
		return ErrStreamState
	}
	return nil
}

// Paused reports the state set by SetPaused.
func (d *Decoder) Paused() bool {
	return d.paused.Load()
}

// AcquireVideoFrame blocks until the next frame is ready, decoding has
// ended (ErrEndOfStream) or ctx is done. While it blocks the decode
// goroutine keeps making progress, overwriting unpresented frames if it
// must.
func (d *Decoder) AcquireVideoFrame(ctx context.Context) (VideoFrame, error) {
	if !d.running.Load() {
		return VideoFrame{}, ErrNotPlaying
	}
	f, err := d.pool.Acquire(ctx)
	if err != nil {
		return VideoFrame{}, err
	}
	return VideoFrame(f), nil
}

// TryAcquireVideoFrame returns the next ready frame without blocking.
func (d *Decoder) TryAcquireVideoFrame() (VideoFrame, AcquireResult) {
	if !d.running.Load() {
		return VideoFrame{}, FrameNotReady
	}
	f, res := d.pool.TryAcquire()
	switch res {
	case framepool.AcquireOK:
		return VideoFrame(f), FrameAcquired
	case framepool.AcquireEndOfStream:
		return VideoFrame{}, FrameEndOfStream
	default:
		return VideoFrame{}, FrameNotReady
	}
}

// ReleaseVideoFrame returns frame index to the decoder. The decoder does
// not write the frame's image before token is done; a nil token means
// the consumer is finished with it already.
func (d *Decoder) ReleaseVideoFrame(index int, token gpu.Token) error {
	if index < 0 || index >= d.pool.Len() {
		return fmt.Errorf("vdec: release frame %d: %w", index, ErrNotAcquired)
	}
	return d.pool.Release(index, token)
}

// EstimatedAudioPlaybackTimestampRaw returns the position of the audio
// stream in seconds as last reported by the mixer, or -1 without an
// audio stream.
func (d *Decoder) EstimatedAudioPlaybackTimestampRaw() float64 {
	ring := d.ring.Load()
	if ring == nil {
		return -1
	}
	pts, _ := ring.Latest()
	return max(pts, 0)
}

// EstimatedAudioPlaybackTimestamp returns the smoothed position of the
// audio stream in seconds, given the host time elapsed in seconds. It
// returns -1 without an audio stream.
//
// The estimate advances with elapsed and is gradually pulled towards the
// mixer's reported position; divergence above 250 ms resets it.
func (d *Decoder) EstimatedAudioPlaybackTimestamp(elapsed float64) float64 {
	ring := d.ring.Load()
	if ring == nil {
		return -1
	}
	pts, sampled := ring.Latest()
	if pts >= 0 && !d.paused.Load() {
		now := d.opts.clock()
		pts += 1e-9 * float64(max(now, sampled)-sampled)
	}
	return d.smoother.update(pts, elapsed)
}

// Close stops playback and closes the codecs and the container.
func (d *Decoder) Close() error {
	d.ctl.Lock()
	defer d.ctl.Unlock()
	if d.closed {
		return nil
	}
	if err := d.stopLocked(); err != nil && !errors.Is(err, ErrNotPlaying) {
		d.log.Warn("vdec: stop on close", "err", err)
	}
	d.pool.Reset(d.dev)
	d.closed = true

	var errs []error
	errs = append(errs, d.video.Close())
	if d.audio != nil {
		errs = append(errs, d.audio.Close())
	}
	errs = append(errs, d.demux.Close())
	return errors.Join(errs...)
}
