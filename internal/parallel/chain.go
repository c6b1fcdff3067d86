package parallel

import "sync"

// Scheduler accepts work for asynchronous execution. It reports false
// when the work was not accepted.
type Scheduler interface {
	Submit(fn func()) bool
}

// Chain runs tasks on a Scheduler strictly one after another, in issue
// order. Task k+1 never starts before task k has returned. Every finished
// task advances the chain's Signal to its ticket.
//
// Only one task of a chain occupies the scheduler at a time, so a chain
// never blocks a worker waiting on its predecessor.
type Chain struct {
	sched  Scheduler
	signal *Signal

	mu      sync.Mutex
	issued  uint64
	done    uint64
	pending []func()
	running bool
}

// NewChain creates a chain that schedules onto s and reports completion
// on sig. A nil scheduler runs every task synchronously in Issue.
func NewChain(s Scheduler, sig *Signal) *Chain {
	if sig == nil {
		sig = NewSignal()
	}
	return &Chain{sched: s, signal: sig}
}

// Signal returns the chain's completion signal.
func (c *Chain) Signal() *Signal {
	return c.signal
}

// Issued returns the ticket of the most recently issued task.
func (c *Chain) Issued() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issued
}

// Issue appends task to the chain and returns its ticket. The signal
// reaches the ticket once task has returned.
func (c *Chain) Issue(task func()) uint64 {
	c.mu.Lock()
	c.issued++
	ticket := c.issued
	c.pending = append(c.pending, task)
	if c.running {
		c.mu.Unlock()
		return ticket
	}
	c.running = true
	sched := c.sched
	c.mu.Unlock()

	if sched == nil || !sched.Submit(c.drain) {
		c.drain()
	}
	return ticket
}

// drain runs pending tasks until the queue is empty.
func (c *Chain) drain() {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.running = false
			c.mu.Unlock()
			return
		}
		task := c.pending[0]
		c.pending[0] = nil
		c.pending = c.pending[1:]
		c.mu.Unlock()

		if task != nil {
			task()
		}

		c.mu.Lock()
		c.done++
		ticket := c.done
		c.mu.Unlock()
		c.signal.Advance(ticket)
	}
}

// SetScheduler replaces the scheduler used for tasks issued from now on.
// Tickets keep counting, so waiters on the chain's Signal are unaffected.
func (c *Chain) SetScheduler(s Scheduler) {
	c.mu.Lock()
	c.sched = s
	c.mu.Unlock()
}
