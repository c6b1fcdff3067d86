// Package pacing decides when the decode goroutine may run another
// iteration and how long it may sleep when it may not.
package pacing

import "time"

const (
	// HighWatermark is the buffered audio frame count above which decoding
	// pauses so the ring cannot overflow.
	HighWatermark = 48

	// lowWatermarkDivisor gives the catch-up threshold: sample_rate/10,
	// 100 ms of audio.
	lowWatermarkDivisor = 10

	// headroomMs is how much audio should remain when the sleeping decoder
	// wakes up.
	headroomMs = 100

	// slackMs is added to the sleep so it does not wake just short of the
	// headroom.
	slackMs = 5
)

// Input is a snapshot of the state the decision depends on. It is taken
// under the frame pool monitor.
type Input struct {
	// HasAudio is set when an audio ring exists.
	HasAudio bool

	// AudioPlaying is set when the mixer reports the stream as playing.
	AudioPlaying bool

	// BufferedFrames is the number of decoded audio frames in the ring.
	BufferedFrames uint32

	// BufferedSamples is the number of audio samples per channel in the ring.
	BufferedSamples uint32

	// SampleRate of the audio stream in Hz.
	SampleRate int

	// ConsumerBlocked is set while a consumer waits in a blocking acquire.
	ConsumerBlocked bool

	// HasIdleSlot is set when a frame pool slot is Idle.
	HasIdleSlot bool
}

// Decide reports whether the decoder should iterate. The rules, in
// priority order: keep the audio ring from overflowing, keep playing
// audio from running dry, serve a blocked consumer, and otherwise decode
// video only into an idle slot.
func Decide(in Input) bool {
	if in.HasAudio {
		if in.BufferedFrames > HighWatermark {
			return false
		}
		if in.AudioPlaying && in.BufferedSamples <= uint32(in.SampleRate/lowWatermarkDivisor) {
			return true
		}
	}
	if in.ConsumerBlocked {
		return true
	}
	return in.HasIdleSlot
}

// SleepBudget returns how long the decoder may sleep before the buffered
// audio drains to about 100 ms. The result is never negative.
func SleepBudget(bufferedSamples uint32, sampleRate int) time.Duration {
	perMs := (sampleRate + 999) / 1000
	if perMs <= 0 {
		return 0
	}
	ms := int(bufferedSamples)/perMs - headroomMs + slackMs
	return time.Duration(max(ms, 0)) * time.Millisecond
}
