package pacing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want bool
	}{
		{"idle slot", Input{HasIdleSlot: true}, true},
		{"no idle slot", Input{}, false},
		{"blocked consumer", Input{ConsumerBlocked: true}, true},
		{"audio saturated beats blocked consumer", Input{HasAudio: true, BufferedFrames: 49, ConsumerBlocked: true, HasIdleSlot: true}, false},
		{"at watermark", Input{HasAudio: true, BufferedFrames: 48, HasIdleSlot: true}, true},
		{"audio starving", Input{HasAudio: true, AudioPlaying: true, BufferedSamples: 4800, SampleRate: 48000}, true},
		{"audio starving but saturated", Input{HasAudio: true, AudioPlaying: true, BufferedFrames: 60, SampleRate: 48000}, false},
		{"audio paused does not starve", Input{HasAudio: true, BufferedSamples: 10, SampleRate: 48000}, false},
		{"audio comfortable", Input{HasAudio: true, AudioPlaying: true, BufferedSamples: 4801, SampleRate: 48000}, false},
		{"audio comfortable idle slot", Input{HasAudio: true, AudioPlaying: true, BufferedSamples: 9600, SampleRate: 48000, HasIdleSlot: true}, true},
		{"no audio ignores counters", Input{BufferedFrames: 64, HasIdleSlot: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.in))
		})
	}
}

func TestSleepBudget(t *testing.T) {
	assert.Equal(t, 105*time.Millisecond, SleepBudget(9600, 48000))
	assert.Equal(t, 5*time.Millisecond, SleepBudget(4800, 48000))
	assert.Zero(t, SleepBudget(0, 48000))
	assert.Zero(t, SleepBudget(1000, 0))

	// 44.1 kHz rounds up to 45 samples per ms.
	assert.Equal(t, 100*time.Millisecond, SleepBudget(45*195, 44100))
}
