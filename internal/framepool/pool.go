// Package framepool implements the fixed-size pool of video frame slots
// shared by the decode goroutine, the upload chain and the consumer.
//
// Every slot moves through Idle -> Locked -> Ready -> Acquired -> Idle.
// All transitions and queries happen under one monitor (a mutex and a
// condition variable) owned by the Pool.
package framepool

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gogpu/vdec/gpu"
	"github.com/gogpu/vdec/internal/parallel"
)

var (
	// ErrStalled is returned by AcquireForDecode when teardown is
	// requested while the consumer holds every slot.
	ErrStalled = errors.New("framepool: every slot is acquired")

	// ErrEndOfStream is returned by Acquire once decoding has finished and
	// no frame is left.
	ErrEndOfStream = errors.New("framepool: end of stream")

	// ErrNotAcquired is returned when releasing a slot the caller does not hold.
	ErrNotAcquired = errors.New("framepool: slot is not acquired")

	// ErrNotLocked is returned when publishing or abandoning a slot that is
	// not locked for upload.
	ErrNotLocked = errors.New("framepool: slot is not locked")
)

// MinSlots is the smallest pool size.
const MinSlots = 4

// SlotsFor returns the pool size for a stream at fps frames per second:
// 200 ms worth of frames, at least MinSlots.
func SlotsFor(fps float64) int {
	return max(int(math.Ceil(fps*0.2)), MinSlots)
}

// State is the state of a slot.
type State uint8

// Slot states.
const (
	Idle State = iota
	Locked
	Ready
	Acquired
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Locked:
		return "locked"
	case Ready:
		return "ready"
	case Acquired:
		return "acquired"
	default:
		return "invalid"
	}
}

// Slot is one unit of frame storage.
//
// Images and FromClient belong to the upload task while the slot is
// Locked and may only be touched by it.
type Slot struct {
	Planes []gpu.Image
	RGB    gpu.Image

	// FromClient is the token the consumer returned on release. The slot's
	// images must not be written before it is done.
	FromClient gpu.Token

	state     State
	toClient  gpu.Token
	pts       float64
	idleOrder uint64
	lockOrder uint64
}

// Frame is a frame handed to the consumer.
type Frame struct {
	Index int
	Image gpu.Image
	Token gpu.Token
	PTS   float64
}

// AcquireResult is the outcome of TryAcquire.
type AcquireResult int

// TryAcquire results.
const (
	AcquireNotReady AcquireResult = iota
	AcquireOK
	AcquireEndOfStream
)

// Uploads is the ordered queue slots are locked for. Every successful
// AcquireForDecode must be followed by exactly one issued upload, whose
// completion advances Signal to Issued()+1 at lock time.
type Uploads interface {
	Signal() *parallel.Signal
	Issued() uint64
}

// View is the part of the pool state pacing decisions depend on.
type View struct {
	HasIdle         bool
	ConsumerBlocked bool
}

// Pool is the frame slot monitor.
type Pool struct {
	mu    sync.Mutex
	cond  *sync.Cond
	slots []Slot
	log   *slog.Logger

	idleTimestamps uint64
	teardown       bool
	eof            bool
	blocking       bool
	trampled       uint64
	ready          uint64
}

// New creates a pool of n slots. A nil logger discards messages.
func New(n int, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	p := &Pool{slots: make([]Slot, max(n, 1)), log: log}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Len returns the number of slots.
func (p *Pool) Len() int { return len(p.slots) }

// Slot returns slot i. See Slot for ownership rules.
func (p *Pool) Slot(i int) *Slot { return &p.slots[i] }

// State returns the state of slot i.
func (p *Pool) State(i int) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slots[i].state
}

func (p *Pool) findIdleLocked() int {
	best := -1
	for i := range p.slots {
		s := &p.slots[i]
		if s.state == Idle && (best < 0 || s.idleOrder < p.slots[best].idleOrder) {
			best = i
		}
	}
	return best
}

func (p *Pool) findReadyLocked() int {
	best := -1
	for i := range p.slots {
		s := &p.slots[i]
		if s.state == Ready && (best < 0 || s.pts < p.slots[best].pts) {
			best = i
		}
	}
	return best
}

// AcquireForDecode locks a slot for the next upload of u. It prefers the
// longest idle slot, then tramples the oldest Ready frame, and otherwise
// waits for the oldest in-flight upload to complete. When the consumer
// holds every slot it waits for a Release.
func (p *Pool) AcquireForDecode(ctx context.Context, u Uploads) (int, error) {
	for {
		p.mu.Lock()
		index := p.findIdleLocked()
		// A consumer blocked in Acquire is about to take the Ready frame.
		for index < 0 && p.blocking && !p.teardown && p.findReadyLocked() >= 0 {
			p.cond.Wait()
			index = p.findIdleLocked()
		}
		if index < 0 {
			if index = p.findReadyLocked(); index >= 0 {
				p.trampled++
				p.log.Warn("framepool: trampling decoded frame", "slot", index, "pts", p.slots[index].pts)
				p.slots[index].toClient = nil
			}
		}
		if index >= 0 {
			s := &p.slots[index]
			s.state = Locked
			s.lockOrder = u.Issued() + 1
			p.mu.Unlock()
			return index, nil
		}

		wait := uint64(math.MaxUint64)
		for i := range p.slots {
			if p.slots[i].state == Locked {
				wait = min(wait, p.slots[i].lockOrder)
			}
		}
		p.mu.Unlock()

		if wait == math.MaxUint64 {
			if err := p.waitRelease(ctx); err != nil {
				return -1, err
			}
			continue
		}
		if err := u.Signal().Wait(ctx, wait); err != nil {
			return -1, err
		}
	}
}

// waitRelease blocks while every slot is Acquired.
func (p *Pool) waitRelease(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.log.Debug("framepool: consumer holds every slot", "slots", len(p.slots))
	for p.allAcquiredLocked() {
		if p.teardown {
			return ErrStalled
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		p.cond.Wait()
	}
	return nil
}

func (p *Pool) allAcquiredLocked() bool {
	for i := range p.slots {
		if p.slots[i].state != Acquired {
			return false
		}
	}
	return true
}

// Publish moves a locked slot to Ready with its presentation time and the
// token that signals when its image may be sampled.
func (p *Pool) Publish(index int, pts float64, token gpu.Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &p.slots[index]
	if s.state != Locked {
		return ErrNotLocked
	}
	s.state = Ready
	s.pts = pts
	s.toClient = token
	p.ready++
	p.cond.Broadcast()
	return nil
}

// Abandon returns a locked slot to Idle without publishing a frame.
func (p *Pool) Abandon(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &p.slots[index]
	if s.state != Locked {
		return ErrNotLocked
	}
	s.state = Idle
	p.idleTimestamps++
	s.idleOrder = p.idleTimestamps
	p.cond.Broadcast()
	return nil
}

func (p *Pool) takeLocked(index int) Frame {
	s := &p.slots[index]
	s.state = Acquired
	f := Frame{Index: index, Image: s.RGB, Token: s.toClient, PTS: s.pts}
	if f.Token == nil {
		f.Token = gpu.Completed()
	}
	s.toClient = nil
	return f
}

// Acquire blocks until a frame is Ready and hands the oldest one to the
// caller. While it waits the decoder is told a consumer is blocked. It
// returns ErrEndOfStream once decoding finished or stopped without a frame
// left.
func (p *Pool) Acquire(ctx context.Context) (Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.blocking = true
	p.cond.Broadcast()
	defer func() {
		p.blocking = false
		p.cond.Broadcast()
	}()

	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	for {
		if index := p.findReadyLocked(); index >= 0 {
			return p.takeLocked(index), nil
		}
		if p.eof || p.teardown {
			return Frame{}, ErrEndOfStream
		}
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		p.cond.Wait()
	}
}

// TryAcquire is the non-blocking form of Acquire.
func (p *Pool) TryAcquire() (Frame, AcquireResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index := p.findReadyLocked(); index >= 0 {
		f := p.takeLocked(index)
		p.cond.Broadcast()
		return f, AcquireOK
	}
	if p.eof || p.teardown {
		return Frame{}, AcquireEndOfStream
	}
	return Frame{}, AcquireNotReady
}

// Release returns an acquired slot to the pool. The slot is not written
// again before token is done; a nil token means the caller is finished.
func (p *Pool) Release(index int, token gpu.Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.slots) || p.slots[index].state != Acquired {
		return ErrNotAcquired
	}
	s := &p.slots[index]
	s.state = Idle
	s.FromClient = token
	p.idleTimestamps++
	s.idleOrder = p.idleTimestamps
	p.cond.Broadcast()
	return nil
}

// Reset returns every slot to Idle and destroys its images on dev, which
// may be nil when no image was ever created.
func (p *Pool) Reset(dev gpu.Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.slots {
		s := &p.slots[i]
		if dev != nil {
			for _, img := range s.Planes {
				if img != nil {
					dev.DestroyImage(img)
				}
			}
			if s.RGB != nil {
				dev.DestroyImage(s.RGB)
			}
		}
		*s = Slot{}
	}
	p.blocking = false
	p.cond.Broadcast()
}

// ResetPlanes destroys the plane images of every slot that is not
// currently Locked by another upload. The caller owns the slot it passes
// as owned. It is used when the decoded pixel format changes.
func (p *Pool) ResetPlanes(dev gpu.Device, owned int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.slots {
		s := &p.slots[i]
		if i != owned && s.state == Locked {
			continue
		}
		for _, img := range s.Planes {
			if img != nil && dev != nil {
				dev.DestroyImage(img)
			}
		}
		s.Planes = nil
	}
}

// Start clears the end-of-stream and teardown flags for a new run.
func (p *Pool) Start() {
	p.mu.Lock()
	p.teardown = false
	p.eof = false
	p.mu.Unlock()
}

// Teardown asks the decode goroutine to stop and wakes every waiter.
func (p *Pool) Teardown() {
	p.mu.Lock()
	p.teardown = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Finish marks the end of decoding. Acquire returns ErrEndOfStream once no
// frame is Ready.
func (p *Pool) Finish() {
	p.mu.Lock()
	p.teardown = true
	p.eof = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// TornDown reports whether Teardown or Finish was called since Start.
func (p *Pool) TornDown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.teardown
}

// Wake wakes the decode goroutine so it re-evaluates its pacing decision.
func (p *Pool) Wake() {
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *Pool) viewLocked() View {
	return View{
		HasIdle:         p.findIdleLocked() >= 0,
		ConsumerBlocked: p.blocking && p.findReadyLocked() < 0,
	}
}

// WaitProgress blocks the decode goroutine until proceed approves the
// current state or teardown is requested. When sleep reports a bounded
// duration the wait re-evaluates after it elapses. WaitProgress reports
// false on teardown.
func (p *Pool) WaitProgress(proceed func(View) bool, sleep func() (time.Duration, bool)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.teardown && !proceed(p.viewLocked()) {
		d, bounded := sleep()
		if !bounded {
			p.cond.Wait()
			continue
		}
		t := time.AfterFunc(max(d, time.Millisecond), func() {
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		})
		p.cond.Wait()
		t.Stop()
	}
	return !p.teardown
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Slots    int
	Idle     int
	Locked   int
	Ready    int
	Acquired int

	// Published counts frames that became Ready.
	Published uint64

	// Trampled counts Ready frames overwritten before the consumer saw them.
	Trampled uint64
}

// ResetStats zeroes the Published and Trampled counters.
func (p *Pool) ResetStats() {
	p.mu.Lock()
	p.ready = 0
	p.trampled = 0
	p.mu.Unlock()
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Stats{Slots: len(p.slots), Published: p.ready, Trampled: p.trampled}
	for i := range p.slots {
		switch p.slots[i].state {
		case Idle:
			st.Idle++
		case Locked:
			st.Locked++
		case Ready:
			st.Ready++
		case Acquired:
			st.Acquired++
		}
	}
	return st
}
