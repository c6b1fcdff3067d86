// Package wav reads RIFF WAVE files holding 16-bit, 32-bit or float PCM
// and decodes them with a pass-through PCM decoder.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/gogpu/vdec/codec"
)

const (
	formatPCM        = 1
	formatFloat      = 3
	formatExtensible = 0xfffe

	// samplesPerPacket is the number of sample frames per packet.
	samplesPerPacket = 1024
)

// Format is the parsed fmt chunk.
type Format struct {
	SampleRate int
	Channels   int
	Bits       int
	Float      bool
}

// Codec returns the PCM codec ID for the format.
func (f Format) Codec() (codec.ID, codec.SampleFormat, error) {
	switch {
	case f.Float && f.Bits == 32:
		return codec.IDPCMF32LE, codec.SampleFormatFLT, nil
	case !f.Float && f.Bits == 16:
		return codec.IDPCMS16LE, codec.SampleFormatS16, nil
	case !f.Float && f.Bits == 32:
		return codec.IDPCMS32LE, codec.SampleFormatS32, nil
	default:
		return "", codec.SampleFormatUnknown, fmt.Errorf("wav: unsupported sample format: %d-bit float=%v", f.Bits, f.Float)
	}
}

func (f Format) blockAlign() int { return f.Channels * f.Bits / 8 }

// Demuxer reads PCM packets from a WAVE file.
type Demuxer struct {
	r        io.ReadSeeker
	closer   io.Closer
	format   Format
	info     codec.StreamInfo
	dataOff  int64
	dataLen  int64
	position int64 // sample frames consumed
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

// NewDemuxer parses the RIFF header from r.
func NewDemuxer(r io.ReadSeeker) (*Demuxer, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("wav: read header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF WAVE file", codec.ErrInvalidData)
	}

	d := &Demuxer{r: r}
	off := int64(12)
	haveFmt := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("%w: missing data chunk", codec.ErrInvalidData)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))
		off += 8

		switch id {
		case "fmt ":
			buf := make([]byte, size)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("wav: read fmt: %w", err)
			}
			if err := d.parseFmt(buf); err != nil {
				return nil, err
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("%w: data before fmt", codec.ErrInvalidData)
			}
			d.dataOff = off
			d.dataLen = size
			return d, d.buildInfo()
		default:
			if _, err := r.Seek(size+size&1, io.SeekCurrent); err != nil {
				return nil, err
			}
		}
		off += size + size&1
	}
}

func (d *Demuxer) parseFmt(b []byte) error {
	if len(b) < 16 {
		return fmt.Errorf("%w: short fmt chunk", codec.ErrInvalidData)
	}
	tag := binary.LittleEndian.Uint16(b[0:2])
	d.format = Format{
		Channels:   int(binary.LittleEndian.Uint16(b[2:4])),
		SampleRate: int(binary.LittleEndian.Uint32(b[4:8])),
		Bits:       int(binary.LittleEndian.Uint16(b[14:16])),
	}
	if tag == formatExtensible && len(b) >= 26 {
		tag = binary.LittleEndian.Uint16(b[24:26])
	}
	switch tag {
	case formatPCM:
	case formatFloat:
		d.format.Float = true
	default:
		return fmt.Errorf("wav: unsupported format tag %#x", tag)
	}
	if d.format.Channels <= 0 || d.format.SampleRate <= 0 {
		return fmt.Errorf("%w: bad fmt chunk", codec.ErrInvalidData)
	}
	return nil
}

func (d *Demuxer) buildInfo() error {
	id, sf, err := d.format.Codec()
	if err != nil {
		return err
	}
	frames := d.dataLen / int64(d.format.blockAlign())
	d.info = codec.StreamInfo{
		Index:        0,
		Type:         codec.MediaAudio,
		Codec:        id,
		TimeBase:     codec.Rational{Num: 1, Den: d.format.SampleRate},
		Duration:     float64(frames) / float64(d.format.SampleRate),
		SampleRate:   d.format.SampleRate,
		Channels:     d.format.Channels,
		SampleFormat: sf,
	}
	return nil
}

// Format returns the parsed fmt chunk.
func (d *Demuxer) Format() Format { return d.format }

// Streams implements codec.Demuxer.
func (d *Demuxer) Streams() []codec.StreamInfo { return []codec.StreamInfo{d.info} }

// ReadPacket implements codec.Demuxer.
func (d *Demuxer) ReadPacket() (*codec.Packet, error) {
	align := int64(d.format.blockAlign())
	remaining := d.dataLen/align - d.position
	if remaining <= 0 {
		return nil, io.EOF
	}
	n := min(remaining, samplesPerPacket)
	data := make([]byte, n*align)
	read, err := io.ReadFull(d.r, data)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	n = int64(read) / align
	if n == 0 {
		return nil, io.EOF
	}
	p := &codec.Packet{StreamIndex: 0, PTS: d.position, DTS: d.position, Keyframe: true, Data: data[:n*align]}
	d.position += n
	return p, nil
}

// SeekKeyframe implements codec.Demuxer. Every sample is a keyframe.
func (d *Demuxer) SeekKeyframe(ts float64) error {
	frames := d.dataLen / int64(d.format.blockAlign())
	pos := int64(math.Floor(math.Max(ts, 0) * float64(d.format.SampleRate)))
	pos = min(pos, frames)
	if _, err := d.r.Seek(d.dataOff+pos*int64(d.format.blockAlign()), io.SeekStart); err != nil {
		return fmt.Errorf("wav: seek: %w", err)
	}
	d.position = pos
	return nil
}

// Close implements codec.Demuxer.
func (d *Demuxer) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

// Header writes a canonical 44-byte header for dataLen bytes of samples.
func Header(f Format, dataLen int) []byte {
	tag := uint16(formatPCM)
	if f.Float {
		tag = formatFloat
	}
	b := make([]byte, 44)
	copy(b[0:], "RIFF")
	binary.LittleEndian.PutUint32(b[4:], uint32(36+dataLen))
	copy(b[8:], "WAVEfmt ")
	binary.LittleEndian.PutUint32(b[16:], 16)
	binary.LittleEndian.PutUint16(b[20:], tag)
	binary.LittleEndian.PutUint16(b[22:], uint16(f.Channels))
	binary.LittleEndian.PutUint32(b[24:], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(b[28:], uint32(f.SampleRate*f.blockAlign()))
	binary.LittleEndian.PutUint16(b[32:], uint16(f.blockAlign()))
	binary.LittleEndian.PutUint16(b[34:], uint16(f.Bits))
	copy(b[36:], "data")
	binary.LittleEndian.PutUint32(b[40:], uint32(dataLen))
	return b
}
