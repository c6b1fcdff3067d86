// Package y4m reads YUV4MPEG2 files: uncompressed planar video with a
// text header. Every frame is a keyframe, which makes the format the
// reference container for exercising seeks and pacing end to end.
package y4m

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gogpu/vdec/codec"
)

const (
	fileMagic  = "YUV4MPEG2"
	frameMagic = "FRAME"
	maxHeader  = 4096
)

// Header is the parsed stream header.
type Header struct {
	Width, Height int
	FrameRate     codec.Rational
	Format        codec.PixelFormat
	Color         codec.Colorimetry
}

// FrameSize returns the byte size of one frame payload.
func (h Header) FrameSize() int {
	return planeLayout(h.Format, h.Width, h.Height).total
}

type layout struct {
	sizes   []int
	strides []int
	total   int
}

func planeLayout(f codec.PixelFormat, w, h int) layout {
	bps := 1
	if f.BitDepth() > 8 {
		bps = 2
	}
	cw, ch := w, h
	if f == codec.PixelFormatYUV420P || f == codec.PixelFormatYUV420P10 {
		cw, ch = (w+1)/2, (h+1)/2
	}
	l := layout{
		strides: []int{w * bps, cw * bps, cw * bps},
		sizes:   []int{w * h * bps, cw * ch * bps, cw * ch * bps},
	}
	for _, s := range l.sizes {
		l.total += s
	}
	return l
}

// ParseHeader parses a header line without the trailing newline.
func ParseHeader(line string) (Header, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != fileMagic {
		return Header{}, fmt.Errorf("%w: not a YUV4MPEG2 stream", codec.ErrInvalidData)
	}

	h := Header{
		FrameRate: codec.Rational{Num: 25, Den: 1},
		Format:    codec.PixelFormatYUV420P,
		Color:     codec.Colorimetry{ChromaLocation: codec.ChromaLocationCenter},
	}
	for _, f := range fields[1:] {
		key, val := f[0], f[1:]
		switch key {
		case 'W':
			h.Width, _ = strconv.Atoi(val)
		case 'H':
			h.Height, _ = strconv.Atoi(val)
		case 'F':
			num, den, ok := strings.Cut(val, ":")
			if ok {
				n, _ := strconv.Atoi(num)
				d, _ := strconv.Atoi(den)
				if n > 0 && d > 0 {
					h.FrameRate = codec.Rational{Num: n, Den: d}
				}
			}
		case 'C':
			if err := parseColorspace(&h, val); err != nil {
				return Header{}, err
			}
		case 'X':
			parseExtension(&h, val)
		}
	}
	if h.Width <= 0 || h.Height <= 0 {
		return Header{}, fmt.Errorf("%w: bad dimensions %dx%d", codec.ErrInvalidData, h.Width, h.Height)
	}
	return h, nil
}

func parseColorspace(h *Header, val string) error {
	switch val {
	case "420jpeg", "420":
		h.Format = codec.PixelFormatYUV420P
		h.Color.ChromaLocation = codec.ChromaLocationCenter
	case "420mpeg2":
		h.Format = codec.PixelFormatYUV420P
		h.Color.ChromaLocation = codec.ChromaLocationLeft
	case "420paldv":
		h.Format = codec.PixelFormatYUV420P
		h.Color.ChromaLocation = codec.ChromaLocationTopLeft
	case "444":
		h.Format = codec.PixelFormatYUV444P
	case "420p10":
		h.Format = codec.PixelFormatYUV420P10
	case "444p10":
		h.Format = codec.PixelFormatYUV444P10
	default:
		return fmt.Errorf("%w: unsupported colorspace C%s", codec.ErrInvalidData, val)
	}
	return nil
}

func parseExtension(h *Header, val string) {
	key, v, ok := strings.Cut(val, "=")
	if !ok {
		return
	}
	switch key {
	case "COLORRANGE":
		switch v {
		case "FULL":
			h.Color.Range = codec.ColorRangeFull
		case "LIMITED":
			h.Color.Range = codec.ColorRangeLimited
		}
	case "COLORSPACE":
		switch strings.ToLower(v) {
		case "bt709":
			h.Color.Space = codec.ColorSpaceBT709
		case "bt2020nc":
			h.Color.Space = codec.ColorSpaceBT2020NCL
		case "smpte170m":
			h.Color.Space = codec.ColorSpaceSMPTE170M
		case "bt470bg":
			h.Color.Space = codec.ColorSpaceBT470BG
		}
	}
}

// String formats the header line without the trailing newline.
func (h Header) String() string {
	var c string
	switch h.Format {
	case codec.PixelFormatYUV444P:
		c = "444"
	case codec.PixelFormatYUV420P10:
		c = "420p10"
	case codec.PixelFormatYUV444P10:
		c = "444p10"
	default:
		switch h.Color.ChromaLocation {
		case codec.ChromaLocationLeft:
			c = "420mpeg2"
		case codec.ChromaLocationTopLeft:
			c = "420paldv"
		default:
			c = "420jpeg"
		}
	}
	s := fmt.Sprintf("%s W%d H%d F%d:%d Ip A1:1 C%s", fileMagic, h.Width, h.Height, h.FrameRate.Num, h.FrameRate.Den, c)
	switch h.Color.Range {
	case codec.ColorRangeFull:
		s += " XCOLORRANGE=FULL"
	case codec.ColorRangeLimited:
		s += " XCOLORRANGE=LIMITED"
	}
	return s
}

// Demuxer reads frames from a YUV4MPEG2 stream.
type Demuxer struct {
	r      io.ReadSeeker
	br     *bufio.Reader
	closer io.Closer
	header Header
	info   codec.StreamInfo

	// offsets[i] is the byte offset of the FRAME tag of frame i.
	offsets []int64
	pos     int64
	frame   int64
}

// Open opens a file.
func Open(path string) (codec.Demuxer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	d, err := NewDemuxer(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	d.closer = f
	return d, nil
}

// NewDemuxer reads the header from r.
func NewDemuxer(r io.ReadSeeker) (*Demuxer, error) {
	d := &Demuxer{r: r, br: bufio.NewReader(r)}
	line, err := d.readLine()
	if err != nil {
		return nil, fmt.Errorf("y4m: read header: %w", err)
	}
	h, err := ParseHeader(line)
	if err != nil {
		return nil, err
	}
	d.header = h
	d.offsets = []int64{d.pos}

	tb := codec.Rational{Num: h.FrameRate.Den, Den: h.FrameRate.Num}
	d.info = codec.StreamInfo{
		Index:       0,
		Type:        codec.MediaVideo,
		Codec:       codec.IDRawVideo,
		TimeBase:    tb,
		Width:       h.Width,
		Height:      h.Height,
		FrameRate:   h.FrameRate,
		PixelFormat: h.Format,
		Color:       h.Color,
	}
	return d, nil
}

func (d *Demuxer) readLine() (string, error) {
	var sb strings.Builder
	for sb.Len() < maxHeader {
		b, err := d.br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		d.pos++
		if b == '\n' {
			return sb.String(), nil
		}
		sb.WriteByte(b)
	}
	return "", fmt.Errorf("%w: header line too long", codec.ErrInvalidData)
}

// Header returns the stream header.
func (d *Demuxer) Header() Header { return d.header }

// Streams implements codec.Demuxer.
func (d *Demuxer) Streams() []codec.StreamInfo { return []codec.StreamInfo{d.info} }

// ReadPacket implements codec.Demuxer. Each packet holds one frame payload.
func (d *Demuxer) ReadPacket() (*codec.Packet, error) {
	start := d.pos
	line, err := d.readLine()
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, frameMagic) {
		return nil, fmt.Errorf("%w: expected FRAME at offset %d", codec.ErrInvalidData, start)
	}

	data := make([]byte, d.header.FrameSize())
	if _, err := io.ReadFull(d.br, data); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("y4m: frame %d: %w", d.frame, err)
	}
	d.pos += int64(len(data))

	if int64(len(d.offsets)) == d.frame {
		d.offsets = append(d.offsets, start)
	}
	pts := d.frame
	d.frame++
	if int64(len(d.offsets)) == d.frame {
		d.offsets = append(d.offsets, d.pos)
	}

	return &codec.Packet{StreamIndex: 0, PTS: pts, DTS: pts, Keyframe: true, Data: data}, nil
}

// SeekKeyframe implements codec.Demuxer.
func (d *Demuxer) SeekKeyframe(ts float64) error {
	target := int64(math.Floor(math.Max(ts, 0) * d.header.FrameRate.Float64()))

	// Frames may carry parameters, so offsets are discovered by scanning.
	for int64(len(d.offsets))-1 < target {
		last := int64(len(d.offsets)) - 1
		if err := d.seekTo(last, d.offsets[last]); err != nil {
			return err
		}
		if err := d.skipFrame(); err != nil {
			if errors.Is(err, io.EOF) {
				// Past the end: the last complete frame is the keyframe.
				target = max(int64(len(d.offsets))-2, 0)
				break
			}
			return err
		}
	}
	return d.seekTo(target, d.offsets[target])
}

func (d *Demuxer) skipFrame() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(line, frameMagic) {
		return fmt.Errorf("%w: expected FRAME", codec.ErrInvalidData)
	}
	n, err := d.br.Discard(d.header.FrameSize())
	d.pos += int64(n)
	if err != nil {
		return io.EOF
	}
	d.frame++
	d.offsets = append(d.offsets, d.pos)
	return nil
}

func (d *Demuxer) seekTo(frame, off int64) error {
	if _, err := d.r.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("y4m: seek: %w", err)
	}
	d.br.Reset(d.r)
	d.pos = off
	d.frame = frame
	return nil
}

// Close implements codec.Demuxer.
func (d *Demuxer) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

// WriteHeader writes a header line to w.
func WriteHeader(w io.Writer, h Header) error {
	_, err := io.WriteString(w, h.String()+"\n")
	return err
}

// WriteFrame writes one frame with its tag to w. data must hold exactly
// h.FrameSize() bytes.
func WriteFrame(w io.Writer, h Header, data []byte) error {
	if len(data) != h.FrameSize() {
		return fmt.Errorf("%w: frame is %d bytes, want %d", codec.ErrInvalidData, len(data), h.FrameSize())
	}
	if _, err := io.WriteString(w, frameMagic+"\n"); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}
