package y4m

import (
	"fmt"
	"io"

	"github.com/gogpu/vdec/codec"
)

// Decoder turns raw frame payloads into codec.VideoFrame values.
// Output lags input by at most one packet.
type Decoder struct {
	info     codec.StreamInfo
	layout   layout
	pending  *codec.Packet
	draining bool
}

// NewDecoder creates a raw video decoder for a stream.
func NewDecoder(info codec.StreamInfo) (codec.VideoDecoder, error) {
	switch info.PixelFormat {
	case codec.PixelFormatYUV420P, codec.PixelFormatYUV444P,
		codec.PixelFormatYUV420P10, codec.PixelFormatYUV444P10:
	default:
		return nil, fmt.Errorf("y4m: unsupported pixel format %s", info.PixelFormat)
	}
	return &Decoder{info: info, layout: planeLayout(info.PixelFormat, info.Width, info.Height)}, nil
}

// SendPacket implements codec.VideoDecoder.
func (d *Decoder) SendPacket(pkt *codec.Packet) error {
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
	if len(pkt.Data) < d.layout.total {
		return fmt.Errorf("%w: frame payload %d bytes, want %d", codec.ErrInvalidData, len(pkt.Data), d.layout.total)
	}
	d.pending = pkt
	return nil
}

// ReceiveFrame implements codec.VideoDecoder.
func (d *Decoder) ReceiveFrame() (*codec.VideoFrame, error) {
	if d.pending == nil {
		if d.draining {
			return nil, io.EOF
		}
		return nil, codec.ErrAgain
	}
	pkt := d.pending
	d.pending = nil

	f := &codec.VideoFrame{
		Width:   d.info.Width,
		Height:  d.info.Height,
		Format:  d.info.PixelFormat,
		Planes:  make([][]byte, 3),
		Strides: append([]int(nil), d.layout.strides...),
		PTS:     pkt.PTS,
		Color:   d.info.Color,
	}
	off := 0
	for i, size := range d.layout.sizes {
		f.Planes[i] = pkt.Data[off : off+size]
		off += size
	}
	return f, nil
}

// Flush implements codec.VideoDecoder.
func (d *Decoder) Flush() {
	d.pending = nil
	d.draining = false
}

// Close implements codec.VideoDecoder.
func (d *Decoder) Close() error { return nil }

// Register adds the Y4M container and the raw video decoder to r.
func Register(r *codec.Registry) {
	r.RegisterContainer("y4m", Open)
	r.RegisterVideo(codec.IDRawVideo, NewDecoder)
}
