package parallel

import (
	"context"
	"sync"
	"time"
)

// Signal is a monotonically increasing completion counter.
//
// Producers advance it as work completes; waiters block until it reaches
// a target value. The value never decreases, so a target that has been
// reached stays reached.
type Signal struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value uint64
}

// NewSignal returns a Signal at zero.
func NewSignal() *Signal {
	s := &Signal{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Value returns the current counter value.
func (s *Signal) Value() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Advance raises the counter to v. Lower values are ignored.
func (s *Signal) Advance(v uint64) {
	s.mu.Lock()
	if v > s.value {
		s.value = v
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

// Wait blocks until the counter reaches target or ctx is done.
func (s *Signal) Wait(ctx context.Context, target uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value >= target {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	for s.value < target {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	return nil
}

// WaitTimeout is Wait with a deadline. It reports whether target was reached.
func (s *Signal) WaitTimeout(target uint64, d time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return s.Wait(ctx, target) == nil
}
