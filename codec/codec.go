package codec

import (
	"errors"
	"io"
)

// Common errors.
var (
	// ErrAgain is returned by decoders that need more input before they can
	// produce output, or that must be drained before accepting more input.
	ErrAgain = errors.New("codec: resource temporarily unavailable")

	// ErrUnknownContainer is returned when no demuxer handles a path.
	ErrUnknownContainer = errors.New("codec: unknown container")

	// ErrDecoderNotFound is returned when no decoder is registered for a codec.
	ErrDecoderNotFound = errors.New("codec: decoder not found")

	// ErrInvalidData is returned for malformed input.
	ErrInvalidData = errors.New("codec: invalid data")

	// ErrSeekUnsupported is returned by demuxers that cannot reposition.
	ErrSeekUnsupported = errors.New("codec: seek not supported")
)

// ID names a codec, e.g. "rawvideo" or "pcm_s16le".
type ID string

// Known codec IDs.
const (
	IDRawVideo ID = "rawvideo"
	IDH264     ID = "h264"
	IDHEVC     ID = "hevc"
	IDAAC      ID = "aac"
	IDOpus     ID = "opus"
	IDPCMS16LE ID = "pcm_s16le"
	IDPCMS32LE ID = "pcm_s32le"
	IDPCMF32LE ID = "pcm_f32le"
)

// StreamInfo describes one elementary stream of a container.
type StreamInfo struct {
	Index    int
	Type     MediaType
	Codec    ID
	TimeBase Rational

	// Duration in seconds, 0 when unknown.
	Duration float64

	// Video parameters.
	Width       int
	Height      int
	FrameRate   Rational
	PixelFormat PixelFormat
	Color       Colorimetry

	// Audio parameters.
	SampleRate   int
	Channels     int
	SampleFormat SampleFormat

	Extradata []byte
}

// Demuxer reads packets from a container.
type Demuxer interface {
	// Streams lists the elementary streams.
	Streams() []StreamInfo

	// ReadPacket returns the next packet, or io.EOF at the end.
	ReadPacket() (*Packet, error)

	// SeekKeyframe repositions so the next packets start at the last
	// keyframe at or before ts seconds.
	SeekKeyframe(ts float64) error

	io.Closer
}

// VideoDecoder decodes packets of one video stream.
type VideoDecoder interface {
	// SendPacket feeds a packet; nil starts draining.
	SendPacket(pkt *Packet) error

	// ReceiveFrame returns the next picture. Ownership passes to the caller.
	ReceiveFrame() (*VideoFrame, error)

	// Flush discards buffered state after a seek.
	Flush()

	io.Closer
}

// AudioDecoder decodes packets of one audio stream.
type AudioDecoder interface {
	// SendPacket feeds a packet; nil starts draining.
	SendPacket(pkt *Packet) error

	// ReceiveFrame decodes into dst, reusing its buffers.
	ReceiveFrame(dst *AudioFrame) error

	// Flush discards buffered state after a seek.
	Flush()

	io.Closer
}

// BestStream returns the first stream of type t, or -1.
func BestStream(streams []StreamInfo, t MediaType) int {
	for i, s := range streams {
		if s.Type == t {
			return i
		}
	}
	return -1
}
