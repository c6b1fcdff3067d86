package audioring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/vdec/codec"
	"github.com/gogpu/vdec/codec/codectest"
)

type fakeClock struct{ ns int64 }

func (c *fakeClock) now() int64 { return c.ns }

func write(t *testing.T, r *Ring, f codec.SampleFormat, n int, pts int64, v float32) {
	t.Helper()
	frame := r.AcquireWriteFrame()
	require.NotNil(t, frame)
	codectest.FillAudio(frame, f, int(r.SampleRate()), r.Channels(), n, v)
	frame.PTS = pts
	r.SubmitWriteFrame()
}

func out(channels, n int) [][]float32 {
	o := make([][]float32, channels)
	for c := range o {
		o[c] = make([]float32, n)
	}
	return o
}

var unity = []float32{1, 1}

func TestRing_StartGate(t *testing.T) {
	r := New(1000, 2, 0.001, nil)
	write(t, r, codec.SampleFormatFLTP, 40, 0, 0.5)

	o := out(2, 10)
	assert.Equal(t, 10, r.AccumulateSamples(o, unity, 10))
	assert.Zero(t, o[0][0])
	assert.Equal(t, uint32(40), r.BufferedSamples())

	write(t, r, codec.SampleFormatFLTP, 40, 40, 0.5)
	assert.Equal(t, 10, r.AccumulateSamples(o, unity, 10))
	assert.Equal(t, float32(0.5), o[0][0])
	assert.Equal(t, float32(0.5), o[1][9])
	assert.Equal(t, uint32(70), r.BufferedSamples())
}

func TestRing_GatedCompleteReturnsZero(t *testing.T) {
	r := New(1000, 1, 0.001, nil)
	write(t, r, codec.SampleFormatFLT, 10, 0, 1)
	r.MarkComplete()
	assert.Equal(t, 0, r.AccumulateSamples(out(1, 8), unity, 8))
}

func TestRing_CompleteDrainsThenRetires(t *testing.T) {
	r := New(1000, 1, 0.001, nil)
	write(t, r, codec.SampleFormatFLT, 60, 0, 1)
	write(t, r, codec.SampleFormatFLT, 20, 60, 1)

	assert.Equal(t, 50, r.AccumulateSamples(out(1, 50), unity, 50))
	r.MarkComplete()

	o := out(1, 100)
	assert.Equal(t, 30, r.AccumulateSamples(o, unity, 100))
	assert.Equal(t, float32(1), o[0][29])
	assert.Zero(t, o[0][30])
	assert.Equal(t, 0, r.AccumulateSamples(o, unity, 100))
	assert.Zero(t, r.BufferedFrames())
}

func TestRing_UnderrunPlaysSilence(t *testing.T) {
	r := New(1000, 1, 0.001, nil)
	write(t, r, codec.SampleFormatFLT, 60, 0, 1)
	o := out(1, 100)
	assert.Equal(t, 100, r.AccumulateSamples(o, unity, 100))
	assert.Equal(t, float32(1), o[0][59])
	assert.Zero(t, o[0][60])
}

func TestRing_Progress(t *testing.T) {
	clk := &fakeClock{ns: 1_000_000}
	r := New(1000, 1, 0.5, clk.now)

	pts, _ := r.Latest()
	assert.Less(t, pts, 0.0)

	write(t, r, codec.SampleFormatFLT, 30, 4, 1)
	write(t, r, codec.SampleFormatFLT, 30, 6, 1)
	r.AccumulateSamples(out(1, 40), unity, 40)

	// The second frame starts 30 samples into the block: 30 ms later.
	pts, ns := r.Latest()
	assert.Equal(t, 3.0, pts)
	assert.Equal(t, int64(1_000_000+30_000_000), ns)

	clk.ns = 5_000_000_000
	r.MarkUncorked()
	_, ns = r.Latest()
	assert.Equal(t, int64(5_000_000_000), ns)
}

func TestRing_MarkUncorkedBeforeStart(t *testing.T) {
	clk := &fakeClock{ns: 42}
	r := New(1000, 1, 1, clk.now)
	r.MarkUncorked()
	_, ns := r.Latest()
	assert.Zero(t, ns)
}

func TestRing_Formats(t *testing.T) {
	tests := []struct {
		name     string
		format   codec.SampleFormat
		channels int
	}{
		{"fltp stereo", codec.SampleFormatFLTP, 2},
		{"flt stereo", codec.SampleFormatFLT, 2},
		{"flt mono", codec.SampleFormatFLT, 1},
		{"s32p stereo", codec.SampleFormatS32P, 2},
		{"s32 stereo", codec.SampleFormatS32, 2},
		{"s32 mono", codec.SampleFormatS32, 1},
		{"s16p stereo", codec.SampleFormatS16P, 2},
		{"s16 stereo", codec.SampleFormatS16, 2},
		{"s16 mono", codec.SampleFormatS16, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(1000, tt.channels, 0.001, nil)
			write(t, r, tt.format, 64, 0, 0.5)

			o := out(tt.channels, 16)
			gain := []float32{2, 0.5}
			require.Equal(t, 16, r.AccumulateSamples(o, gain, 16))
			assert.InDelta(t, 1.0, o[0][7], 1e-3)
			if tt.channels == 2 {
				assert.InDelta(t, 0.25, o[1][7], 1e-3)
			}
		})
	}
}

func TestRing_Full(t *testing.T) {
	r := New(1000, 1, 0.001, nil)
	for i := range Frames {
		write(t, r, codec.SampleFormatFLT, 1, int64(i), 0)
	}
	assert.Nil(t, r.AcquireWriteFrame())
	assert.Equal(t, uint32(Frames), r.BufferedFrames())
}

func TestRing_AcquireIsIdempotent(t *testing.T) {
	r := New(1000, 1, 0.001, nil)
	assert.Same(t, r.AcquireWriteFrame(), r.AcquireWriteFrame())
}

func TestRing_Setup(t *testing.T) {
	r := New(48000, 2, 1.0/48000, nil)
	assert.True(t, r.Setup(44100, 2, 512))
	assert.False(t, r.Setup(48000, 1, 512))
	r.Dispose()
	assert.True(t, r.Disposed())
}
