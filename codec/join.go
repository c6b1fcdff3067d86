package codec

import (
	"errors"
	"io"
)

// Join presents the video streams of one demuxer and the audio streams of
// another as a single container. Audio stream indices are shifted past
// the video demuxer's streams. Packets are interleaved by presentation
// time.
func Join(video, audio Demuxer) Demuxer {
	j := &joined{video: video, audio: audio}
	j.offset = len(video.Streams())
	for _, s := range video.Streams() {
		if s.Type == MediaVideo {
			j.streams = append(j.streams, s)
		}
	}
	for _, s := range audio.Streams() {
		if s.Type == MediaAudio {
			s.Index += j.offset
			j.streams = append(j.streams, s)
		}
	}
	return j
}

type joined struct {
	video, audio Demuxer
	offset       int
	streams      []StreamInfo

	// one packet of lookahead per side
	nextV, nextA *Packet
	eofV, eofA   bool
}

func (j *joined) Streams() []StreamInfo { return j.streams }

func (j *joined) timeBase(index int) Rational {
	for _, s := range j.streams {
		if s.Index == index {
			return s.TimeBase
		}
	}
	return Rational{}
}

func (j *joined) seconds(p *Packet) float64 {
	if p.PTS == NoPTS {
		return 0
	}
	return float64(p.PTS) * j.timeBase(p.StreamIndex).Float64()
}

func (j *joined) fill() error {
	if j.nextV == nil && !j.eofV {
		p, err := j.video.ReadPacket()
		switch {
		case errors.Is(err, io.EOF):
			j.eofV = true
		case err != nil:
			return err
		default:
			j.nextV = p
		}
	}
	if j.nextA == nil && !j.eofA {
		p, err := j.audio.ReadPacket()
		switch {
		case errors.Is(err, io.EOF):
			j.eofA = true
		case err != nil:
			return err
		default:
			p.StreamIndex += j.offset
			j.nextA = p
		}
	}
	return nil
}

func (j *joined) ReadPacket() (*Packet, error) {
	if err := j.fill(); err != nil {
		return nil, err
	}
	var p *Packet
	switch {
	case j.nextV != nil && j.nextA != nil:
		if j.seconds(j.nextA) < j.seconds(j.nextV) {
			p, j.nextA = j.nextA, nil
		} else {
			p, j.nextV = j.nextV, nil
		}
	case j.nextV != nil:
		p, j.nextV = j.nextV, nil
	case j.nextA != nil:
		p, j.nextA = j.nextA, nil
	default:
		return nil, io.EOF
	}
	return p, nil
}

func (j *joined) SeekKeyframe(ts float64) error {
	j.nextV, j.nextA = nil, nil
	j.eofV, j.eofA = false, false
	if err := j.video.SeekKeyframe(ts); err != nil {
		return err
	}
	return j.audio.SeekKeyframe(ts)
}

func (j *joined) Close() error {
	return errors.Join(j.video.Close(), j.audio.Close())
}
