package mixer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("mixer: closed")

type entry struct {
	id     StreamID
	stream Stream
	gain   atomic.Pointer[[]float32]
	state  atomic.Uint32
}

// Software mixes streams into host memory buffers.
//
// Mix is normally driven by an audio backend callback; Run drives it from a
// ticker for headless playback. Control methods may be called from any
// goroutine.
type Software struct {
	rate      float32
	channels  int
	maxFrames int
	log       *slog.Logger

	mu      sync.Mutex
	streams []*entry
	nextID  StreamID

	mixed  atomic.Int64
	closed atomic.Bool

	// buf, active and retired are only touched by Mix and Run.
	buf     [][]float32
	active  []*entry
	retired []StreamID
}

// NewSoftware creates a mixer rendering channels channels at rate Hz, in
// blocks of at most maxFrames frames.
func NewSoftware(rate float32, channels, maxFrames int) *Software {
	if channels <= 0 {
		channels = 2
	}
	if maxFrames <= 0 {
		maxFrames = 1024
	}
	m := &Software{
		rate:      rate,
		channels:  channels,
		maxFrames: maxFrames,
		log:       slog.New(slog.DiscardHandler),
		buf:       make([][]float32, channels),
	}
	for c := range m.buf {
		m.buf[c] = make([]float32, maxFrames)
	}
	return m
}

// SetLogger sets the logger used for stream lifecycle messages.
func (m *Software) SetLogger(l *slog.Logger) {
	if l != nil {
		m.log = l
	}
}

// SampleRate returns the output rate.
func (m *Software) SampleRate() float32 { return m.rate }

// Channels returns the output channel count.
func (m *Software) Channels() int { return m.channels }

// AddStream implements Mixer.
func (m *Software) AddStream(s Stream, playing bool) StreamID {
	if s == nil || !s.Setup(m.rate, m.channels, m.maxFrames) {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e := &entry{id: m.nextID, stream: s}
	gain := make([]float32, m.channels)
	for c := range gain {
		gain[c] = 1
	}
	e.gain.Store(&gain)
	state := StreamPaused
	if playing {
		state = StreamPlaying
	}
	e.state.Store(uint32(state))
	m.streams = append(m.streams, e)
	m.log.Debug("mixer: stream added", "id", e.id, "state", state)
	return e.id
}

func (m *Software) find(id StreamID) *entry {
	for _, e := range m.streams {
		if e.id == id {
			return e
		}
	}
	return nil
}

// SetGain sets the per-channel gain of a stream.
func (m *Software) SetGain(id StreamID, gain ...float32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.find(id)
	if e == nil {
		return false
	}
	g := make([]float32, m.channels)
	for c := range g {
		g[c] = 1
		if c < len(gain) {
			g[c] = gain[c]
		}
	}
	e.gain.Store(&g)
	return true
}

// KillStream implements Mixer.
func (m *Software) KillStream(id StreamID) {
	m.mu.Lock()
	var killed *entry
	for i, e := range m.streams {
		if e.id == id {
			killed = e
			m.streams = append(m.streams[:i], m.streams[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	if killed != nil {
		killed.stream.Dispose()
		m.log.Debug("mixer: stream killed", "id", id)
	}
}

func (m *Software) transition(id StreamID, from, to StreamState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.find(id)
	if e == nil {
		return false
	}
	if StreamState(e.state.Load()) == to {
		return true
	}
	return e.state.CompareAndSwap(uint32(from), uint32(to))
}

// PlayStream implements Mixer.
func (m *Software) PlayStream(id StreamID) bool {
	return m.transition(id, StreamPaused, StreamPlaying)
}

// PauseStream implements Mixer.
func (m *Software) PauseStream(id StreamID) bool {
	return m.transition(id, StreamPlaying, StreamPaused)
}

// StreamState implements Mixer.
func (m *Software) StreamState(id StreamID) StreamState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.find(id); e != nil {
		return StreamState(e.state.Load())
	}
	return StreamStopped
}

// Mix renders n frames into out, which must hold Channels() slices of at
// least n samples. Streams that report fewer than n frames are retired.
// Mix must not be called concurrently with itself or Run.
func (m *Software) Mix(out [][]float32, n int) {
	for c := range out {
		clear(out[c][:n])
	}

	m.mu.Lock()
	active := m.active[:0]
	for _, e := range m.streams {
		if StreamState(e.state.Load()) == StreamPlaying {
			active = append(active, e)
		}
	}
	m.mu.Unlock()

	retired := m.retired[:0]
	for _, e := range active {
		if got := e.stream.AccumulateSamples(out, *e.gain.Load(), n); got < n {
			retired = append(retired, e.id)
		}
	}
	m.mixed.Add(int64(n))

	for _, id := range retired {
		m.log.Debug("mixer: stream drained", "id", id)
		m.KillStream(id)
	}
	clear(active)
	m.active = active
	m.retired = retired
}

// FramesMixed returns the number of frames rendered so far.
func (m *Software) FramesMixed() int64 { return m.mixed.Load() }

// Run renders one block every period until ctx is done or the mixer is
// closed. Each rendered block is passed to sink, which may be nil; the
// buffers are reused by the next block.
func (m *Software) Run(ctx context.Context, period time.Duration, sink func([][]float32)) error {
	frames := min(max(int(float64(m.rate)*period.Seconds()), 1), m.maxFrames)
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		if m.closed.Load() {
			return ErrClosed
		}
		block := m.buf
		for c := range block {
			block[c] = block[c][:frames]
		}
		m.Mix(block, frames)
		if sink != nil {
			sink(block)
		}
	}
}

// Close kills every stream. Close is idempotent.
func (m *Software) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.mu.Lock()
	streams := m.streams
	m.streams = nil
	m.mu.Unlock()
	for _, e := range streams {
		e.stream.Dispose()
	}
}

var _ Mixer = (*Software)(nil)
