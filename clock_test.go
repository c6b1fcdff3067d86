package vdec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSmoother_LatchesFirstSample(t *testing.T) {
	var s ptsSmoother
	assert.Equal(t, 2.0, s.update(2.0, 10))
}

func TestSmoother_FollowsHostTime(t *testing.T) {
	var s ptsSmoother
	s.update(1.0, 10)

	// Reported position lags by 20 ms; the estimate moves with the host
	// timer and closes a small part of the gap.
	got := s.update(1.48, 10.5)
	assert.InDelta(t, 1.5+0.005*(1.48-1.5), got, 1e-12)
}

func TestSmoother_SnapsOnLargeDivergence(t *testing.T) {
	var s ptsSmoother
	s.update(1.0, 10)
	assert.Equal(t, 5.0, s.update(5.0, 10.1))
	assert.Equal(t, 0.5, s.update(0.5, 10.2))
}

func TestSmoother_NegativeRestarts(t *testing.T) {
	var s ptsSmoother
	s.update(3.0, 10)
	assert.Equal(t, 0.0, s.update(-1, 11))
	assert.Equal(t, 0.0, s.update(0, 12))
	assert.InDelta(t, 1.0, s.update(1.0, 13), 1e-12)
}

func TestSmoother_Reset(t *testing.T) {
	var s ptsSmoother
	s.update(1.0, 10)
	s.update(1.1, 10.1)
	s.reset()
	assert.Equal(t, 7.0, s.update(7.0, 20))
}
