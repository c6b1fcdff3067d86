package wav

import (
	"fmt"
	"io"

	"github.com/gogpu/vdec/codec"
)

// PCMDecoder copies interleaved PCM packets into audio frames.
type PCMDecoder struct {
	info     codec.StreamInfo
	pending  *codec.Packet
	draining bool
}

// NewPCMDecoder creates a decoder for an interleaved PCM stream.
func NewPCMDecoder(info codec.StreamInfo) (codec.AudioDecoder, error) {
	if info.SampleFormat.BytesPerSample() == 0 || info.SampleFormat.Planar() {
		return nil, fmt.Errorf("wav: unsupported sample format %s", info.SampleFormat)
	}
	if info.Channels <= 0 {
		return nil, fmt.Errorf("wav: bad channel count %d", info.Channels)
	}
	return &PCMDecoder{info: info}, nil
}

// SendPacket implements codec.AudioDecoder.
func (d *PCMDecoder) SendPacket(pkt *codec.Packet) error {
	if pkt == nil {
		d.draining = true
		return nil
	}
	if d.draining {
		return io.EOF
	}
	if d.pending != nil {
		return codec.ErrAgain
	}
	d.pending = pkt
	return nil
}

// ReceiveFrame implements codec.AudioDecoder.
func (d *PCMDecoder) ReceiveFrame(dst *codec.AudioFrame) error {
	if d.pending == nil {
		if d.draining {
			return io.EOF
		}
		return codec.ErrAgain
	}
	pkt := d.pending
	d.pending = nil

	block := d.info.Channels * d.info.SampleFormat.BytesPerSample()
	dst.Format = d.info.SampleFormat
	dst.SampleRate = d.info.SampleRate
	dst.Channels = d.info.Channels
	dst.NumSamples = len(pkt.Data) / block
	dst.PTS = pkt.PTS
	if len(dst.Data) != 1 {
		dst.Data = make([][]byte, 1)
	}
	dst.Data[0] = append(dst.Data[0][:0], pkt.Data[:dst.NumSamples*block]...)
	return nil
}

// Flush implements codec.AudioDecoder.
func (d *PCMDecoder) Flush() {
	d.pending = nil
	d.draining = false
}

// Close implements codec.AudioDecoder.
func (d *PCMDecoder) Close() error { return nil }

// Register adds the WAVE container and PCM decoders to r.
func Register(r *codec.Registry) {
	r.RegisterContainer("wav", Open)
	for _, id := range []codec.ID{codec.IDPCMS16LE, codec.IDPCMS32LE, codec.IDPCMF32LE} {
		r.RegisterAudio(id, NewPCMDecoder)
	}
}
