package vdec

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/vdec/codec"
	"github.com/gogpu/vdec/codec/codectest"
	"github.com/gogpu/vdec/gpu"
	"github.com/gogpu/vdec/gpu/software"
	"github.com/gogpu/vdec/internal/parallel"
	"github.com/gogpu/vdec/mixer"
)

// fixture serves one scripted container and keeps the codecs it created.
type fixture struct {
	demux *codectest.Demuxer
	video atomic.Pointer[codectest.VideoDecoder]
	audio atomic.Pointer[codectest.AudioDecoder]
	reg   *codec.Registry
	dev   *software.Device
}

func newFixture(s codectest.Script) *fixture {
	f := &fixture{demux: codectest.NewDemuxer(s), reg: codec.NewRegistry(), dev: software.NewDevice()}
	f.reg.RegisterContainer("fake", func(string) (codec.Demuxer, error) {
		return f.demux, nil
	})
	f.reg.RegisterVideo(codectest.IDFakeVideo, func(info codec.StreamInfo) (codec.VideoDecoder, error) {
		d := codectest.NewVideoDecoder(info, s)
		f.video.Store(d)
		return d, nil
	})
	f.reg.RegisterAudio(codectest.IDFakeAudio, func(info codec.StreamInfo) (codec.AudioDecoder, error) {
		d := codectest.NewAudioDecoder(info, s)
		f.audio.Store(d)
		return d, nil
	})
	return f
}

// open opens the scripted container and begins a software device context.
func (f *fixture) open(t *testing.T, opts ...Option) *Decoder {
	t.Helper()
	d, err := Open("clip.fake", append([]Option{WithRegistry(f.reg)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, d.BeginDeviceContext(f.dev, nil))
	return d
}

func video(frames int, fps int) *codectest.VideoTrack {
	return &codectest.VideoTrack{
		Width:  16,
		Height: 8,
		Format: codec.PixelFormatYUV420P,
		FPS:    codec.Rational{Num: fps, Den: 1},
		Frames: frames,
	}
}

func stereo(packets int) *codectest.AudioTrack {
	return &codectest.AudioTrack{
		SampleRate: 48000,
		Channels:   2,
		Format:     codec.SampleFormatFLT,
		Packets:    packets,
		Value:      0.5,
	}
}

// present acquires frames until end of stream and returns their PTS.
func present(t *testing.T, d *Decoder) []float64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var pts []float64
	for {
		f, err := d.AcquireVideoFrame(ctx)
		if errors.Is(err, ErrEndOfStream) {
			return pts
		}
		require.NoError(t, err)
		require.NoError(t, f.Token.Wait(ctx))
		require.NotNil(t, f.Image)
		pts = append(pts, f.PTS)
		require.NoError(t, d.ReleaseVideoFrame(f.Index, nil))
	}
}

func assertIncreasing(t *testing.T, pts []float64) {
	t.Helper()
	for i := 1; i < len(pts); i++ {
		assert.Greater(t, pts[i], pts[i-1], "frame %d", i)
	}
}

func TestOpen_Errors(t *testing.T) {
	t.Run("unknown container", func(t *testing.T) {
		_, err := Open("clip.nope", WithRegistry(codec.NewRegistry()))
		assert.ErrorIs(t, err, codec.ErrUnknownContainer)
	})

	t.Run("no video", func(t *testing.T) {
		f := newFixture(codectest.Script{Audio: stereo(4)})
		_, err := Open("clip.fake", WithRegistry(f.reg))
		assert.ErrorIs(t, err, ErrNoVideoStream)
		assert.True(t, f.demux.Closed())
	})

	t.Run("missing video decoder", func(t *testing.T) {
		f := newFixture(codectest.Script{Video: video(4, 30)})
		f.reg.UnregisterVideo(codectest.IDFakeVideo)
		_, err := Open("clip.fake", WithRegistry(f.reg))
		assert.ErrorIs(t, err, codec.ErrDecoderNotFound)
	})

	t.Run("surround audio", func(t *testing.T) {
		a := stereo(4)
		a.Channels = 6
		f := newFixture(codectest.Script{Video: video(4, 30), Audio: a})
		_, err := Open("clip.fake", WithRegistry(f.reg), WithMixer(mixer.NewSoftware(48000, 2, 1024)))
		assert.ErrorIs(t, err, ErrUnsupportedAudio)
	})

	t.Run("audio ignored without mixer", func(t *testing.T) {
		a := stereo(4)
		a.Channels = 6
		f := newFixture(codectest.Script{Video: video(4, 30), Audio: a})
		d, err := Open("clip.fake", WithRegistry(f.reg))
		require.NoError(t, err)
		assert.Nil(t, f.audio.Load())
		assert.NoError(t, d.Close())
	})
}

func TestDecoder_Accessors(t *testing.T) {
	f := newFixture(codectest.Script{Video: video(4, 30)})
	d := f.open(t)
	assert.Equal(t, 16, d.Width())
	assert.Equal(t, 8, d.Height())
	assert.Equal(t, 6, d.Stats().Slots)
	assert.NotEqual(t, uuid.Nil, d.Session())

	_, ok := d.StreamID()
	assert.False(t, ok)
	assert.Equal(t, -1.0, d.EstimatedAudioPlaybackTimestamp(1))
	assert.Equal(t, -1.0, d.EstimatedAudioPlaybackTimestampRaw())
}

func TestDecoder_PlayRequiresDevice(t *testing.T) {
	f := newFixture(codectest.Script{Video: video(4, 30)})
	d, err := Open("clip.fake", WithRegistry(f.reg))
	require.NoError(t, err)
	defer d.Close()

	assert.ErrorIs(t, d.Play(), ErrNoDevice)
	assert.ErrorIs(t, d.Stop(), ErrNotPlaying)
	_, err = d.AcquireVideoFrame(context.Background())
	assert.ErrorIs(t, err, ErrNotPlaying)
	_, res := d.TryAcquireVideoFrame()
	assert.Equal(t, FrameNotReady, res)
}

func TestDecoder_PresentsEveryFrameInOrder(t *testing.T) {
	f := newFixture(codectest.Script{Video: video(10, 30)})
	d := f.open(t)
	require.NoError(t, d.Play())
	assert.ErrorIs(t, d.Play(), ErrAlreadyPlaying)

	pts := present(t, d)
	st := d.Stats()
	require.Len(t, pts, 10)
	assertIncreasing(t, pts)
	assert.InDelta(t, 0.0, pts[0], 1e-9)
	assert.EqualValues(t, 10, st.FramesDecoded)
	assert.Zero(t, st.Trampled)

	_, res := d.TryAcquireVideoFrame()
	assert.Equal(t, FrameEndOfStream, res)

	require.NoError(t, d.Stop())
	assert.Zero(t, f.dev.LiveImages())
}

func TestDecoder_ReorderingFuzzedDecoder(t *testing.T) {
	v := video(40, 30)
	v.Delay = 3
	f := newFixture(codectest.Script{Video: v, Seed: 42})
	d := f.open(t)
	require.NoError(t, d.Play())

	pts := present(t, d)
	assert.Len(t, pts, 40)
	assertIncreasing(t, pts)
}

func TestDecoder_WorkerPoolScheduler(t *testing.T) {
	wp := parallel.NewWorkerPool(3)
	defer wp.Close()

	f := newFixture(codectest.Script{Video: video(30, 30)})
	d := f.open(t)
	require.NoError(t, d.BeginDeviceContext(f.dev, wp))
	require.NoError(t, d.Play())

	pts := present(t, d)
	assert.Len(t, pts, 30)
	assert.Zero(t, d.Stats().Trampled)
	assertIncreasing(t, pts)
}

func TestDecoder_ReadErrorDrains(t *testing.T) {
	v := video(10, 30)
	v.Delay = 2
	f := newFixture(codectest.Script{Video: v, ReadErrAt: 6})
	d := f.open(t)
	require.NoError(t, d.Play())

	// Six packets read, the two held back by the decoder are drained.
	pts := present(t, d)
	assert.Len(t, pts, 6)
	assertIncreasing(t, pts)
}

func TestDecoder_HardwareTransferFailureDropsFrame(t *testing.T) {
	v := video(5, 30)
	v.Hardware = true
	v.TransferErrAt = 2
	f := newFixture(codectest.Script{Video: v})
	d := f.open(t)
	require.NoError(t, d.Play())

	pts := present(t, d)
	st := d.Stats()
	assert.Len(t, pts, 4)
	assert.EqualValues(t, 1, st.DroppedFrames)
	for _, p := range pts {
		assert.Greater(t, math.Abs(p-2.0/30), 1e-9, "dropped frame presented")
	}
	assert.Equal(t, 5, f.video.Load().Released())
}

func TestDecoder_Seek(t *testing.T) {
	f := newFixture(codectest.Script{Video: video(30, 30)})
	d := f.open(t)
	require.NoError(t, d.Play())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	first, err := d.AcquireVideoFrame(ctx)
	require.NoError(t, err)
	require.NoError(t, d.ReleaseVideoFrame(first.Index, nil))

	require.NoError(t, d.Seek(0.5))
	assert.Equal(t, []float64{0.5}, f.demux.Seeks())
	assert.Equal(t, 2, f.video.Load().Flushes(), "flushed by play and by seek")

	next, err := d.AcquireVideoFrame(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, next.PTS, 1e-6)
	require.NoError(t, d.ReleaseVideoFrame(next.Index, nil))

	rest := present(t, d)
	assertIncreasing(t, append([]float64{next.PTS}, rest...))
}

// seekHook runs onSeek before every SeekKeyframe.
type seekHook struct {
	*codectest.Demuxer
	onSeek func()
}

func (h *seekHook) SeekKeyframe(ts float64) error {
	h.onSeek()
	return h.Demuxer.SeekKeyframe(ts)
}

// slowDevice delays every image write so uploads stay in flight.
type slowDevice struct {
	*software.Device
	delay time.Duration
}

func (s slowDevice) WriteImage(img gpu.Image, data []byte, stride int) error {
	time.Sleep(s.delay)
	return s.Device.WriteImage(img, data, stride)
}

func TestDecoder_SeekDrainsUploads(t *testing.T) {
	wp := parallel.NewWorkerPool(3)
	defer wp.Close()

	f := newFixture(codectest.Script{Video: video(60, 30)})
	var d *Decoder
	var seeks, drained atomic.Int32
	hook := &seekHook{Demuxer: f.demux, onSeek: func() {
		seeks.Add(1)
		if d.chain.Signal().Value() == d.chain.Issued() {
			drained.Add(1)
		}
	}}
	f.reg.RegisterContainer("fake", func(string) (codec.Demuxer, error) { return hook, nil })

	d = f.open(t)
	require.NoError(t, d.BeginDeviceContext(slowDevice{Device: f.dev, delay: 2 * time.Millisecond}, wp))
	require.NoError(t, d.Play())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	first, err := d.AcquireVideoFrame(ctx)
	require.NoError(t, err)
	require.NoError(t, d.ReleaseVideoFrame(first.Index, nil))

	require.NoError(t, d.Seek(1))
	assert.EqualValues(t, 1, seeks.Load())
	assert.EqualValues(t, 1, drained.Load(), "uploads still in flight at seek")

	next, err := d.AcquireVideoFrame(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, next.PTS, 1e-6)
	require.NoError(t, d.ReleaseVideoFrame(next.Index, nil))

	rest := present(t, d)
	assert.Len(t, rest, 29)
	assertIncreasing(t, append([]float64{next.PTS}, rest...))
	assert.Zero(t, d.Stats().Trampled)
}

func TestDecoder_ConsumerHoldingEverySlot(t *testing.T) {
	f := newFixture(codectest.Script{Video: video(12, 30)})
	d := f.open(t)
	require.NoError(t, d.Play())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var held []VideoFrame
	for range d.Stats().Slots {
		fr, err := d.AcquireVideoFrame(ctx)
		require.NoError(t, err)
		held = append(held, fr)
	}

	type result struct {
		f   VideoFrame
		err error
	}
	got := make(chan result, 1)
	go func() {
		fr, err := d.AcquireVideoFrame(ctx)
		got <- result{fr, err}
	}()

	// The blocked acquire lets the decoder iterate with no slot to lock.
	time.Sleep(50 * time.Millisecond)
	select {
	case r := <-got:
		t.Fatalf("acquire returned while every slot was held: %v", r.err)
	default:
	}

	require.NoError(t, d.ReleaseVideoFrame(held[0].Index, nil))
	r := <-got
	require.NoError(t, r.err)
	assert.InDelta(t, float64(len(held))/30, r.f.PTS, 1e-6)

	for _, fr := range held[1:] {
		require.NoError(t, d.ReleaseVideoFrame(fr.Index, nil))
	}
	require.NoError(t, d.ReleaseVideoFrame(r.f.Index, nil))
	rest := present(t, d)
	assert.Len(t, rest, 12-len(held)-1)
	assert.EqualValues(t, 12, d.Stats().FramesDecoded)
}

func TestDecoder_StatsRestartWithDeviceContext(t *testing.T) {
	f := newFixture(codectest.Script{Video: video(5, 30)})
	d := f.open(t)
	require.NoError(t, d.Play())
	require.Len(t, present(t, d), 5)
	require.EqualValues(t, 5, d.Stats().FramesDecoded)

	require.NoError(t, d.Stop())
	require.NoError(t, d.BeginDeviceContext(f.dev, nil))
	st := d.Stats()
	assert.Zero(t, st.FramesDecoded)
	assert.Zero(t, st.DroppedFrames)
	assert.Zero(t, st.Trampled)
}

func TestDecoder_SeekStartsStoppedDecoder(t *testing.T) {
	f := newFixture(codectest.Script{Video: video(30, 30)})
	d := f.open(t)

	require.NoError(t, d.Seek(-3))
	assert.Equal(t, []float64{0}, f.demux.Seeks())
	assert.True(t, d.Stats().Playing)

	pts := present(t, d)
	assert.NotEmpty(t, pts)

	// The decode goroutine has finished; seeking restarts it.
	require.NoError(t, d.Seek(0.9))
	pts = present(t, d)
	require.NotEmpty(t, pts)
	assert.InDelta(t, 0.9, pts[0], 1e-6)
}

func TestDecoder_StopInvalidatesFrames(t *testing.T) {
	f := newFixture(codectest.Script{Video: video(30, 30)})
	d := f.open(t)
	require.NoError(t, d.Play())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fr, err := d.AcquireVideoFrame(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Stop())
	assert.ErrorIs(t, d.ReleaseVideoFrame(fr.Index, nil), ErrNotAcquired)
	assert.ErrorIs(t, d.ReleaseVideoFrame(99, nil), ErrNotAcquired)
	assert.Zero(t, f.dev.LiveImages())
	assert.False(t, d.Stats().Playing)

	require.NoError(t, d.Play())
	d.EndDeviceContext()
	assert.ErrorIs(t, d.Play(), ErrNoDevice)
}

func TestDecoder_Close(t *testing.T) {
	f := newFixture(codectest.Script{Video: video(30, 30)})
	d := f.open(t)
	require.NoError(t, d.Play())

	require.NoError(t, d.Close())
	assert.True(t, f.demux.Closed())
	assert.Zero(t, f.dev.LiveImages())
	assert.ErrorIs(t, d.Play(), ErrClosed)
	assert.ErrorIs(t, d.Seek(0), ErrClosed)
	assert.NoError(t, d.Close())
}

func TestDecoder_AudioReachesMixer(t *testing.T) {
	var now atomic.Int64
	mix := mixer.NewSoftware(48000, 2, 1024)
	f := newFixture(codectest.Script{Video: video(3, 30), Audio: stereo(30)})
	d := f.open(t, WithMixer(mix), WithClock(now.Load))
	require.NoError(t, d.Play())

	id, ok := d.StreamID()
	require.True(t, ok)
	assert.Equal(t, mixer.StreamPlaying, mix.StreamState(id))

	require.Eventually(t, func() bool {
		return d.Stats().AudioBufferedFrames == 30
	}, 5*time.Second, time.Millisecond)
	assert.EqualValues(t, 30*1024, d.Stats().AudioBufferedSamples)
	assert.Equal(t, 0.0, d.EstimatedAudioPlaybackTimestampRaw())

	out := [][]float32{make([]float32, 1024), make([]float32, 1024)}
	mix.Mix(out, 1024)
	assert.InDelta(t, 0.5, out[0][0], 1e-6)
	assert.InDelta(t, 0.5, out[1][1023], 1e-6)
	mix.Mix(out, 1024)
	assert.InDelta(t, 1024.0/48000, d.EstimatedAudioPlaybackTimestampRaw(), 1e-9)

	now.Add(int64(10 * time.Millisecond))
	got := d.EstimatedAudioPlaybackTimestamp(1.0)
	assert.InDelta(t, 1024.0/48000+0.01, got, 1e-9)

	now.Add(int64(100 * time.Millisecond))
	got = d.EstimatedAudioPlaybackTimestamp(1.1)
	assert.InDelta(t, 1024.0/48000+0.11, got, 1e-9)

	require.NoError(t, d.SetPaused(true))
	assert.True(t, d.Paused())
	assert.Equal(t, mixer.StreamPaused, mix.StreamState(id))
	now.Add(int64(time.Second))
	assert.InDelta(t, 1024.0/48000, d.EstimatedAudioPlaybackTimestamp(5), 1e-9)

	require.NoError(t, d.SetPaused(false))
	assert.Equal(t, mixer.StreamPlaying, mix.StreamState(id))
	assert.InDelta(t, 1024.0/48000, d.EstimatedAudioPlaybackTimestamp(6), 1e-9)

	pts := present(t, d)
	assert.NotEmpty(t, pts)

	require.NoError(t, d.Stop())
	assert.Equal(t, mixer.StreamStopped, mix.StreamState(id))
	_, ok = d.StreamID()
	assert.False(t, ok)
}

func TestDecoder_PausedStartsStreamPaused(t *testing.T) {
	mix := mixer.NewSoftware(48000, 2, 1024)
	f := newFixture(codectest.Script{Video: video(3, 30), Audio: stereo(4)})
	d := f.open(t, WithMixer(mix))

	require.NoError(t, d.SetPaused(true))
	require.NoError(t, d.Play())
	id, ok := d.StreamID()
	require.True(t, ok)
	assert.Equal(t, mixer.StreamPaused, mix.StreamState(id))
}

func TestDecoder_TramplesWhileAudioRunsLow(t *testing.T) {
	mix := mixer.NewSoftware(48000, 2, 1024)
	f := newFixture(codectest.Script{Video: video(40, 10), Audio: stereo(200)})
	d := f.open(t, WithMixer(mix))
	require.Equal(t, 4, d.Stats().Slots)
	require.NoError(t, d.Play())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = mix.Run(ctx, time.Millisecond, nil) }()

	// Nobody acquires: keeping audio fed forces the decoder through video
	// frames it has no idle slot for.
	require.Eventually(t, func() bool {
		return d.Stats().Trampled > 0
	}, 10*time.Second, time.Millisecond)
	st := d.Stats()
	assert.GreaterOrEqual(t, st.DroppedFrames, st.Trampled)
	require.NoError(t, d.Stop())
}
