package vdec

import (
	"math"
	"sync"
)

const (
	// smoothResetThreshold is the divergence in seconds past which the
	// smoothed clock jumps to the reported position.
	smoothResetThreshold = 0.25

	// smoothBias is the fraction of the divergence corrected per call.
	smoothBias = 0.005
)

// ptsSmoother follows the host timer between calls and nudges it towards
// the audio position, so presented timestamps advance evenly.
type ptsSmoother struct {
	mu      sync.Mutex
	elapsed float64
	pts     float64
}

func (s *ptsSmoother) reset() {
	s.mu.Lock()
	s.elapsed, s.pts = 0, 0
	s.mu.Unlock()
}

// update folds the reported position pts into the clock at host time
// elapsed and returns the smoothed position. A negative pts means no
// sample has played yet; it restarts smoothing at zero.
func (s *ptsSmoother) update(pts, elapsed float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pts < 0 {
		pts = 0
		s.elapsed, s.pts = 0, 0
	}

	if s.elapsed == 0 {
		s.elapsed = elapsed
		s.pts = pts
		return s.pts
	}

	s.pts += elapsed - s.elapsed
	s.elapsed = elapsed
	if math.Abs(s.pts-pts) > smoothResetThreshold {
		s.pts = pts
	} else {
		s.pts += smoothBias * (pts - s.pts)
	}
	return s.pts
}
