// Package codectest provides scripted demuxers and decoders for testing
// code built on package codec.
package codectest

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/gogpu/vdec/codec"
)

// IDFakeVideo and IDFakeAudio are the codec IDs of the scripted streams.
const (
	IDFakeVideo codec.ID = "fake_video"
	IDFakeAudio codec.ID = "fake_audio"
)

// VideoTrack describes a scripted video stream.
type VideoTrack struct {
	Width, Height int
	Format        codec.PixelFormat
	FPS           codec.Rational
	Frames        int
	Color         codec.Colorimetry

	// Delay holds back this many frames inside the decoder, so the first
	// Delay packets answer ErrAgain the way a reordering decoder does.
	Delay int

	// Hardware delivers frames as hardware surfaces.
	Hardware bool

	// TransferErrAt fails the host transfer of this frame number (0 based).
	// Negative disables.
	TransferErrAt int
}

// AudioTrack describes a scripted audio stream.
type AudioTrack struct {
	SampleRate int
	Channels   int
	Format     codec.SampleFormat

	// SamplesPerPacket defaults to 1024.
	SamplesPerPacket int
	Packets          int

	// Value is written to every sample, in the [-1, 1] range.
	Value float32
}

// Script describes a scripted container.
type Script struct {
	Video *VideoTrack
	Audio *AudioTrack

	// ReadErrAt fails ReadPacket with ErrRead once this many packets were
	// returned. Negative or zero disables.
	ReadErrAt int

	// Seed enables fuzz mode when non-zero: decoders randomly answer
	// ErrAgain before accepting a packet.
	Seed uint64
}

// ErrRead is the scripted read failure.
var ErrRead = errors.New("codectest: scripted read error")

// ErrTransfer is the scripted hardware transfer failure.
var ErrTransfer = errors.New("codectest: scripted transfer error")

type scheduled struct {
	t   float64
	pkt codec.Packet
}

// Demuxer plays back a Script.
type Demuxer struct {
	script  Script
	streams []codec.StreamInfo
	packets []scheduled

	mu     sync.Mutex
	pos    int
	reads  int
	closed bool
	seeks  []float64
}

// NewDemuxer builds the packet schedule for s.
func NewDemuxer(s Script) *Demuxer {
	d := &Demuxer{script: s}
	if v := s.Video; v != nil {
		idx := len(d.streams)
		fps := v.FPS
		d.streams = append(d.streams, codec.StreamInfo{
			Index:       idx,
			Type:        codec.MediaVideo,
			Codec:       IDFakeVideo,
			TimeBase:    codec.Rational{Num: fps.Den, Den: fps.Num},
			Duration:    float64(v.Frames) / fps.Float64(),
			Width:       v.Width,
			Height:      v.Height,
			FrameRate:   fps,
			PixelFormat: v.Format,
			Color:       v.Color,
		})
		for i := range v.Frames {
			d.packets = append(d.packets, scheduled{
				t:   float64(i) / fps.Float64(),
				pkt: codec.Packet{StreamIndex: idx, PTS: int64(i), DTS: int64(i), Keyframe: true, Data: frameNumber(i)},
			})
		}
	}
	if a := s.Audio; a != nil {
		idx := len(d.streams)
		spp := a.samplesPerPacket()
		d.streams = append(d.streams, codec.StreamInfo{
			Index:        idx,
			Type:         codec.MediaAudio,
			Codec:        IDFakeAudio,
			TimeBase:     codec.Rational{Num: 1, Den: a.SampleRate},
			Duration:     float64(a.Packets*spp) / float64(a.SampleRate),
			SampleRate:   a.SampleRate,
			Channels:     a.Channels,
			SampleFormat: a.Format,
		})
		for i := range a.Packets {
			pts := int64(i * spp)
			d.packets = append(d.packets, scheduled{
				t:   float64(pts) / float64(a.SampleRate),
				pkt: codec.Packet{StreamIndex: idx, PTS: pts, DTS: pts, Keyframe: true, Data: frameNumber(spp)},
			})
		}
	}
	sort.SliceStable(d.packets, func(i, j int) bool { return d.packets[i].t < d.packets[j].t })
	return d
}

func (a *AudioTrack) samplesPerPacket() int {
	if a.SamplesPerPacket > 0 {
		return a.SamplesPerPacket
	}
	return 1024
}

func frameNumber(n int) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(n))
}

// Streams implements codec.Demuxer.
func (d *Demuxer) Streams() []codec.StreamInfo { return d.streams }

// ReadPacket implements codec.Demuxer.
func (d *Demuxer) ReadPacket() (*codec.Packet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.script.ReadErrAt > 0 && d.reads >= d.script.ReadErrAt {
		return nil, ErrRead
	}
	if d.pos >= len(d.packets) {
		return nil, io.EOF
	}
	p := d.packets[d.pos].pkt
	d.pos++
	d.reads++
	return &p, nil
}

// SeekKeyframe implements codec.Demuxer.
func (d *Demuxer) SeekKeyframe(ts float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seeks = append(d.seeks, ts)
	d.pos = sort.Search(len(d.packets), func(i int) bool { return d.packets[i].t >= ts })
	if d.pos > 0 && (d.pos == len(d.packets) || d.packets[d.pos].t > ts) {
		d.pos--
	}
	return nil
}

// Seeks returns the timestamps passed to SeekKeyframe.
func (d *Demuxer) Seeks() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float64(nil), d.seeks...)
}

// Close implements codec.Demuxer.
func (d *Demuxer) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (d *Demuxer) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Register adds the scripted container under extension "fake" and the
// scripted decoders to r. Every Open returns a fresh Demuxer for s.
func Register(r *codec.Registry, s Script) {
	r.RegisterContainer("fake", func(string) (codec.Demuxer, error) {
		return NewDemuxer(s), nil
	})
	r.RegisterVideo(IDFakeVideo, func(info codec.StreamInfo) (codec.VideoDecoder, error) {
		return NewVideoDecoder(info, s), nil
	})
	r.RegisterAudio(IDFakeAudio, func(info codec.StreamInfo) (codec.AudioDecoder, error) {
		return NewAudioDecoder(info, s), nil
	})
}

type fuzzer struct {
	rng *rand.Rand
}

func newFuzzer(seed uint64) fuzzer {
	if seed == 0 {
		return fuzzer{}
	}
	return fuzzer{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// again reports whether to answer ErrAgain this time.
func (f fuzzer) again() bool {
	return f.rng != nil && f.rng.IntN(4) == 0
}

func planeSizes(f codec.PixelFormat, w, h int) (sizes, strides []int) {
	cw, ch := (w+1)/2, (h+1)/2
	switch f {
	case codec.PixelFormatYUV420P:
		return []int{w * h, cw * ch, cw * ch}, []int{w, cw, cw}
	case codec.PixelFormatYUV444P:
		return []int{w * h, w * h, w * h}, []int{w, w, w}
	case codec.PixelFormatNV12, codec.PixelFormatNV21:
		return []int{w * h, 2 * cw * ch}, []int{w, 2 * cw}
	case codec.PixelFormatP010, codec.PixelFormatP016:
		return []int{2 * w * h, 4 * cw * ch}, []int{2 * w, 4 * cw}
	case codec.PixelFormatP410, codec.PixelFormatP416:
		return []int{2 * w * h, 4 * w * h}, []int{2 * w, 4 * w}
	case codec.PixelFormatYUV420P10:
		return []int{2 * w * h, 2 * cw * ch, 2 * cw * ch}, []int{2 * w, 2 * cw, 2 * cw}
	case codec.PixelFormatYUV444P10:
		return []int{2 * w * h, 2 * w * h, 2 * w * h}, []int{2 * w, 2 * w, 2 * w}
	case codec.PixelFormatRGBA:
		return []int{4 * w * h}, []int{4 * w}
	default:
		return nil, nil
	}
}

// Frame builds a mid-gray picture in format f.
func Frame(f codec.PixelFormat, w, h int, pts int64) *codec.VideoFrame {
	sizes, strides := planeSizes(f, w, h)
	frame := &codec.VideoFrame{Width: w, Height: h, Format: f, PTS: pts, Strides: strides}
	for _, n := range sizes {
		p := make([]byte, n)
		for i := range p {
			p[i] = 0x80
		}
		frame.Planes = append(frame.Planes, p)
	}
	return frame
}

// VideoDecoder plays back the video track of a Script.
type VideoDecoder struct {
	info  codec.StreamInfo
	track VideoTrack
	fuzz  fuzzer

	mu       sync.Mutex
	queue    []int64
	draining bool
	flushes  int
	released int
}

// NewVideoDecoder creates a scripted video decoder.
func NewVideoDecoder(info codec.StreamInfo, s Script) *VideoDecoder {
	d := &VideoDecoder{info: info, fuzz: newFuzzer(s.Seed), track: VideoTrack{TransferErrAt: -1}}
	if s.Video != nil {
		d.track = *s.Video
	}
	return d
}

// SendPacket implements codec.VideoDecoder.
func (d *VideoDecoder) SendPacket(pkt *codec.Packet) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pkt == nil {
		d.draining = true
		return nil
	}
	if d.draining {
		return io.EOF
	}
	if len(d.queue) > d.track.Delay || d.fuzz.again() {
		return codec.ErrAgain
	}
	d.queue = append(d.queue, pkt.PTS)
	return nil
}

// ReceiveFrame implements codec.VideoDecoder.
func (d *VideoDecoder) ReceiveFrame() (*codec.VideoFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 || (!d.draining && len(d.queue) <= d.track.Delay) {
		if d.draining {
			return nil, io.EOF
		}
		return nil, codec.ErrAgain
	}
	pts := d.queue[0]
	d.queue = d.queue[1:]

	frame := Frame(d.info.PixelFormat, d.info.Width, d.info.Height, pts)
	frame.Color = d.info.Color
	if d.track.Hardware {
		hw := &surface{dec: d, frame: frame, fail: int(pts) == d.track.TransferErrAt}
		return &codec.VideoFrame{Width: frame.Width, Height: frame.Height, PTS: pts, Color: frame.Color, HW: hw}, nil
	}
	return frame, nil
}

// Flush implements codec.VideoDecoder.
func (d *VideoDecoder) Flush() {
	d.mu.Lock()
	d.queue = d.queue[:0]
	d.draining = false
	d.flushes++
	d.mu.Unlock()
}

// Flushes returns how many times Flush was called.
func (d *VideoDecoder) Flushes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushes
}

// Released returns how many hardware surfaces were released.
func (d *VideoDecoder) Released() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// Close implements codec.VideoDecoder.
func (d *VideoDecoder) Close() error { return nil }

type surface struct {
	dec   *VideoDecoder
	frame *codec.VideoFrame
	fail  bool
}

func (s *surface) TransferToHost() (*codec.VideoFrame, error) {
	if s.fail {
		return nil, ErrTransfer
	}
	return s.frame, nil
}

func (s *surface) Release() {
	s.dec.mu.Lock()
	s.dec.released++
	s.dec.mu.Unlock()
}

// AudioDecoder plays back the audio track of a Script.
type AudioDecoder struct {
	info  codec.StreamInfo
	value float32
	fuzz  fuzzer

	mu       sync.Mutex
	pending  *codec.Packet
	draining bool
	flushes  int
}

// NewAudioDecoder creates a scripted audio decoder.
func NewAudioDecoder(info codec.StreamInfo, s Script) *AudioDecoder {
	d := &AudioDecoder{info: info, fuzz: newFuzzer(s.Seed)}
	if s.Audio != nil {
		d.value = s.Audio.Value
	}
	return d
}

// SendPacket implements codec.AudioDecoder.
func (d *AudioDecoder) SendPacket(pkt *codec.Packet) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pkt == nil {
		d.draining = true
		return nil
	}
	if d.draining {
		return io.EOF
	}
	if d.pending != nil || d.fuzz.again() {
		return codec.ErrAgain
	}
	d.pending = pkt
	return nil
}

// ReceiveFrame implements codec.AudioDecoder.
func (d *AudioDecoder) ReceiveFrame(dst *codec.AudioFrame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		if d.draining {
			return io.EOF
		}
		return codec.ErrAgain
	}
	pkt := d.pending
	d.pending = nil

	n := int(binary.LittleEndian.Uint32(pkt.Data))
	FillAudio(dst, d.info.SampleFormat, d.info.SampleRate, d.info.Channels, n, d.value)
	dst.PTS = pkt.PTS
	return nil
}

// Flush implements codec.AudioDecoder.
func (d *AudioDecoder) Flush() {
	d.mu.Lock()
	d.pending = nil
	d.draining = false
	d.flushes++
	d.mu.Unlock()
}

// Flushes returns how many times Flush was called.
func (d *AudioDecoder) Flushes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushes
}

// Close implements codec.AudioDecoder.
func (d *AudioDecoder) Close() error { return nil }

// FillAudio sets dst to n samples per channel of constant value v, in
// format f, reusing its buffers.
func FillAudio(dst *codec.AudioFrame, f codec.SampleFormat, rate, channels, n int, v float32) {
	dst.Format = f
	dst.SampleRate = rate
	dst.Channels = channels
	dst.NumSamples = n

	planes, perPlane := 1, n*channels
	if f.Planar() {
		planes, perPlane = channels, n
	}
	if len(dst.Data) != planes {
		dst.Data = make([][]byte, planes)
	}
	bps := f.BytesPerSample()
	for p := range planes {
		buf := dst.Data[p][:0]
		for range perPlane {
			buf = appendSample(buf, f, v)
		}
		dst.Data[p] = buf[:perPlane*bps]
	}
}

func appendSample(b []byte, f codec.SampleFormat, v float32) []byte {
	switch f {
	case codec.SampleFormatS16, codec.SampleFormatS16P:
		return binary.LittleEndian.AppendUint16(b, uint16(int16(v*math.MaxInt16)))
	case codec.SampleFormatS32, codec.SampleFormatS32P:
		return binary.LittleEndian.AppendUint32(b, uint32(int32(float64(v)*math.MaxInt32)))
	default:
		return binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
}
