// Package mpegts demuxes MPEG transport streams carrying H.264, H.265, AAC
// and Opus, on top of mediacommon's transport stream reader.
//
// Only demuxing lives here. Decoders for the elementary streams must be
// registered separately, usually by a host that owns a hardware decoder.
package mpegts

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/gogpu/vdec/codec"
)

// clockRate is the transport stream timestamp rate.
const clockRate = 90000

// aacFrameSamples is the number of samples in one AAC access unit.
const aacFrameSamples = 1024

// opusPacketTicks is the duration of a 20 ms Opus packet at clockRate.
const opusPacketTicks = clockRate / 50

var timeBase = codec.Rational{Num: 1, Den: clockRate}

// Demuxer reads packets from a transport stream.
type Demuxer struct {
	src    io.ReadSeeker
	closer io.Closer
	log    *slog.Logger

	reader  *mpegts.Reader
	streams []codec.StreamInfo
	pids    []uint16
	primary int
	queue   []*codec.Packet
	err     error
}

// Open opens a .ts file.
func Open(path string) (codec.Demuxer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	d, err := NewDemuxer(f, nil)
	if err != nil {
		f.Close()
		return nil, err
	}
	d.closer = f
	return d, nil
}

// NewDemuxer reads the program tables from r. A nil logger discards
// decode error reports.
func NewDemuxer(r io.ReadSeeker, log *slog.Logger) (*Demuxer, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	d := &Demuxer{src: r, log: log, primary: -1}
	if err := d.init(); err != nil {
		return nil, err
	}
	if len(d.streams) == 0 {
		return nil, fmt.Errorf("%w: no supported tracks", codec.ErrInvalidData)
	}
	return d, nil
}

// init creates a reader positioned at the start of the stream and attaches
// the track callbacks. Stream indices stay stable across calls.
func (d *Demuxer) init() error {
	if _, err := d.src.Seek(0, io.SeekStart); err != nil {
		return err
	}
	d.reader = &mpegts.Reader{R: d.src}
	if err := d.reader.Initialize(); err != nil {
		return fmt.Errorf("mpegts: initialize: %w", err)
	}
	d.reader.OnDecodeError(func(err error) {
		d.log.Debug("mpegts: decode error", "err", err)
	})

	first := d.streams == nil
	for _, track := range d.reader.Tracks() {
		idx := d.indexOf(track.PID)
		if idx < 0 && !first {
			continue
		}
		switch c := track.Codec.(type) {
		case *mpegts.CodecH264:
			if idx < 0 {
				idx = d.add(track.PID, codec.StreamInfo{Type: codec.MediaVideo, Codec: codec.IDH264})
			}
			d.reader.OnDataH264(track, func(pts, dts int64, au [][]byte) error {
				d.push(idx, pts, dts, au, h264.IsRandomAccess(au))
				return nil
			})
		case *mpegts.CodecH265:
			if idx < 0 {
				idx = d.add(track.PID, codec.StreamInfo{Type: codec.MediaVideo, Codec: codec.IDHEVC})
			}
			d.reader.OnDataH265(track, func(pts, dts int64, au [][]byte) error {
				d.push(idx, pts, dts, au, h265.IsRandomAccess(au))
				return nil
			})
		case *mpegts.CodecMPEG4Audio:
			rate := c.Config.SampleRate
			if rate <= 0 {
				rate = 48000
			}
			if idx < 0 {
				idx = d.add(track.PID, codec.StreamInfo{
					Type:         codec.MediaAudio,
					Codec:        codec.IDAAC,
					SampleRate:   rate,
					Channels:     c.Config.ChannelCount,
					SampleFormat: codec.SampleFormatFLTP,
				})
			}
			step := int64(aacFrameSamples * clockRate / rate)
			d.reader.OnDataMPEG4Audio(track, func(pts int64, aus [][]byte) error {
				for i, au := range aus {
					p := pts + int64(i)*step
					d.queue = append(d.queue, &codec.Packet{StreamIndex: idx, PTS: p, DTS: p, Keyframe: true, Data: au})
				}
				return nil
			})
		case *mpegts.CodecOpus:
			if idx < 0 {
				idx = d.add(track.PID, codec.StreamInfo{
					Type:         codec.MediaAudio,
					Codec:        codec.IDOpus,
					SampleRate:   48000,
					Channels:     c.ChannelCount,
					SampleFormat: codec.SampleFormatFLT,
				})
			}
			d.reader.OnDataOpus(track, func(pts int64, packets [][]byte) error {
				for i, pkt := range packets {
					p := pts + int64(i)*opusPacketTicks
					d.queue = append(d.queue, &codec.Packet{StreamIndex: idx, PTS: p, DTS: p, Keyframe: true, Data: pkt})
				}
				return nil
			})
		default:
			d.log.Debug("mpegts: skipping track", "pid", track.PID, "codec", fmt.Sprintf("%T", track.Codec))
		}
	}

	if first {
		d.primary = codec.BestStream(d.streams, codec.MediaVideo)
		if d.primary < 0 && len(d.streams) > 0 {
			d.primary = 0
		}
	}
	return nil
}

func (d *Demuxer) indexOf(pid uint16) int {
	for i, p := range d.pids {
		if p == pid {
			return i
		}
	}
	return -1
}

func (d *Demuxer) add(pid uint16, info codec.StreamInfo) int {
	info.Index = len(d.streams)
	info.TimeBase = timeBase
	d.streams = append(d.streams, info)
	d.pids = append(d.pids, pid)
	return info.Index
}

func (d *Demuxer) push(idx int, pts, dts int64, au [][]byte, key bool) {
	if len(au) == 0 {
		return
	}
	data, err := h264.AnnexB(au).Marshal()
	if err != nil {
		d.log.Debug("mpegts: bad access unit", "err", err)
		return
	}
	d.queue = append(d.queue, &codec.Packet{StreamIndex: idx, PTS: pts, DTS: dts, Keyframe: key, Data: data})
}

// Streams implements codec.Demuxer.
func (d *Demuxer) Streams() []codec.StreamInfo { return d.streams }

// ReadPacket implements codec.Demuxer.
func (d *Demuxer) ReadPacket() (*codec.Packet, error) {
	for len(d.queue) == 0 {
		if d.err != nil {
			return nil, d.err
		}
		if err := d.reader.Read(); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			d.err = err
		}
	}
	p := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	return p, nil
}

func (d *Demuxer) seconds(p *codec.Packet) float64 {
	return float64(p.PTS) / clockRate
}

// SeekKeyframe implements codec.Demuxer. Transport streams carry no index,
// so the stream is rescanned from the start and the packets from the last
// keyframe of the primary stream at or before ts are kept queued.
func (d *Demuxer) SeekKeyframe(ts float64) error {
	d.queue = nil
	d.err = nil
	if err := d.init(); err != nil {
		return err
	}

	var kept []*codec.Packet
	for {
		p, err := d.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.queue = kept
				return nil
			}
			return err
		}
		if p.StreamIndex == d.primary {
			if d.seconds(p) > ts && kept != nil {
				d.queue = append(append(kept, p), d.queue...)
				return nil
			}
			if p.Keyframe && d.seconds(p) <= ts {
				kept = kept[:0]
			}
		}
		if kept != nil || (p.StreamIndex == d.primary && p.Keyframe) {
			kept = append(kept, p)
		}
	}
}

// Close implements codec.Demuxer.
func (d *Demuxer) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

// Register adds the transport stream container to r.
func Register(r *codec.Registry) {
	r.RegisterContainer("ts", Open)
	r.RegisterContainer("m2ts", Open)
}
