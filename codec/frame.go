package codec

import "math"

// NoPTS marks a missing timestamp.
const NoPTS int64 = math.MinInt64

// Rational is a fraction, used for time bases and frame rates.
type Rational struct {
	Num, Den int
}

// Float64 returns the value, or 0 when the denominator is zero.
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// IsZero reports whether the fraction is unset.
func (r Rational) IsZero() bool {
	return r.Num == 0 || r.Den == 0
}

// Packet is one compressed unit of an elementary stream.
type Packet struct {
	StreamIndex int
	PTS         int64
	DTS         int64
	Keyframe    bool
	Data        []byte
}

// VideoFrame is a decoded picture.
//
// For software frames Planes holds one slice per plane with Strides bytes
// per row. Hardware frames set HW and leave Planes empty until transferred.
type VideoFrame struct {
	Width   int
	Height  int
	Format  PixelFormat
	Planes  [][]byte
	Strides []int
	PTS     int64
	Color   Colorimetry
	HW      HardwareSurface
}

// HardwareSurface is a decoded picture resident in decoder-owned memory.
type HardwareSurface interface {
	// TransferToHost copies the picture into a software frame.
	TransferToHost() (*VideoFrame, error)

	// Release returns the surface to the decoder.
	Release()
}

// AudioFrame is a block of decoded audio.
//
// Data holds one slice per channel for planar formats, otherwise a single
// interleaved slice. Decoders reuse the slices of the frame they are given.
type AudioFrame struct {
	Format     SampleFormat
	SampleRate int
	Channels   int
	NumSamples int
	Data       [][]byte
	PTS        int64
}

// Reset clears the frame for reuse, keeping its buffers.
func (f *AudioFrame) Reset() {
	f.NumSamples = 0
	f.PTS = NoPTS
	for i := range f.Data {
		f.Data[i] = f.Data[i][:0]
	}
}
