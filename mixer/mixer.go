// Package mixer defines the audio mixer the decoder feeds and a software
// implementation of it.
//
// A mixer pulls samples from its streams on a real-time goroutine. Stream
// implementations must not block or allocate inside AccumulateSamples.
package mixer

// StreamID identifies a stream added to a mixer. The zero value is never
// a valid id.
type StreamID uint64

// StreamState is the playback state of a stream.
type StreamState uint8

// Stream states. A stream that was killed or retired reports StreamStopped.
const (
	StreamStopped StreamState = iota
	StreamPlaying
	StreamPaused
)

// String returns the state name.
func (s StreamState) String() string {
	switch s {
	case StreamPlaying:
		return "playing"
	case StreamPaused:
		return "paused"
	default:
		return "stopped"
	}
}

// Stream is a source of audio samples.
type Stream interface {
	// Setup is called once when the stream is added. It reports whether the
	// stream can render into the mixer's output layout.
	Setup(outputRate float32, channels int, maxFrames int) bool

	// AccumulateSamples adds up to n frames, scaled by gain[c], into
	// out[c][0:n] for every channel c. It returns the number of frames
	// consumed; a value below n retires the stream.
	AccumulateSamples(out [][]float32, gain []float32, n int) int

	// Channels returns the stream's channel count.
	Channels() int

	// SampleRate returns the stream's sample rate in Hz.
	SampleRate() float32

	// Dispose is called once the mixer no longer references the stream.
	Dispose()
}

// Mixer owns a set of playing streams.
type Mixer interface {
	// AddStream adds s in the playing or paused state. It returns 0 when
	// the stream rejects the mixer's layout.
	AddStream(s Stream, playing bool) StreamID

	// KillStream removes a stream. Unknown ids are ignored.
	KillStream(id StreamID)

	// PlayStream resumes a paused stream.
	PlayStream(id StreamID) bool

	// PauseStream pauses a playing stream.
	PauseStream(id StreamID) bool

	// StreamState returns the state of a stream.
	StreamState(id StreamID) StreamState
}
