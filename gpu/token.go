package gpu

import (
	"context"
	"sync"
)

// Token signals completion of submitted device work. The decoder hands
// one to the consumer with every frame (the frame may be sampled after
// Wait returns) and receives one back on release (the decoder may
// overwrite the frame after Wait returns).
type Token interface {
	// Wait blocks until the work is complete or ctx is done.
	Wait(ctx context.Context) error

	// Done reports whether the work is complete without blocking.
	Done() bool
}

// Fence is a Token that is signaled explicitly.
//
// The zero value is an unsignaled fence.
type Fence struct {
	once sync.Once
	mu   sync.Mutex
	ch   chan struct{}
}

// NewFence returns an unsignaled fence.
func NewFence() *Fence {
	return &Fence{ch: make(chan struct{})}
}

func (f *Fence) signalCh() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch == nil {
		f.ch = make(chan struct{})
	}
	return f.ch
}

// Signal marks the fence complete. Signal is idempotent.
func (f *Fence) Signal() {
	ch := f.signalCh()
	f.once.Do(func() { close(ch) })
}

// Wait implements Token.
func (f *Fence) Wait(ctx context.Context) error {
	select {
	case <-f.signalCh():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done implements Token.
func (f *Fence) Done() bool {
	select {
	case <-f.signalCh():
		return true
	default:
		return false
	}
}

// completed is a Token that is always signaled.
type completed struct{}

func (completed) Wait(context.Context) error { return nil }
func (completed) Done() bool                 { return true }

// Completed returns a Token that is already signaled.
func Completed() Token { return completed{} }

var _ Token = (*Fence)(nil)
