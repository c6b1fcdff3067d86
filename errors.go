package vdec

import (
	"errors"

	"github.com/gogpu/vdec/internal/framepool"
)

// Common errors.
var (
	// ErrNoDevice is returned by Play when no device context was begun.
	ErrNoDevice = errors.New("vdec: no device context")

	// ErrAlreadyPlaying is returned by Play while the decode goroutine runs.
	ErrAlreadyPlaying = errors.New("vdec: already playing")

	// ErrNotPlaying is returned by Stop and the acquire methods before Play.
	ErrNotPlaying = errors.New("vdec: not playing")

	// ErrNoVideoStream is returned by Open for containers without video.
	ErrNoVideoStream = errors.New("vdec: no video stream")

	// ErrUnsupportedAudio is returned by Open for audio tracks that are not
	// mono or stereo, or use an unsupported sample format.
	ErrUnsupportedAudio = errors.New("vdec: unsupported audio format")

	// ErrStreamState is returned by SetPaused when the mixer rejects the
	// state change.
	ErrStreamState = errors.New("vdec: failed to set stream state")

	// ErrUploadTimeout is returned when in-flight uploads do not drain
	// within the stop timeout.
	ErrUploadTimeout = errors.New("vdec: uploads did not drain")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("vdec: decoder closed")

	// ErrEndOfStream is returned by AcquireVideoFrame once decoding has
	// finished and every frame was presented.
	ErrEndOfStream = framepool.ErrEndOfStream

	// ErrNotAcquired is returned when releasing a frame that is not held.
	ErrNotAcquired = framepool.ErrNotAcquired
)
