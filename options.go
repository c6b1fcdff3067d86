package vdec

import (
	"time"

	"github.com/gogpu/vdec/codec"
	"github.com/gogpu/vdec/mixer"
)

// Option configures a Decoder during Open.
//
// Example:
//
//	mix := mixer.NewSoftware(48000, 2, 512)
//	dec, err := vdec.Open("clip.y4m",
//	    vdec.WithMixer(mix),
//	    vdec.WithMipmaps(true),
//	)
type Option func(*options)

// Clock returns a monotonic timestamp in nanoseconds.
type Clock func() int64

// options holds optional configuration for Decoder creation.
type options struct {
	mixer       mixer.Mixer
	registry    *codec.Registry
	mipmaps     bool
	fallbackFPS float64
	stopTimeout time.Duration
	clock       Clock
}

// Defaults.
const (
	// DefaultFallbackFPS sizes the frame pool for streams that declare no
	// frame rate.
	DefaultFallbackFPS = 60

	// DefaultStopTimeout bounds how long Stop waits for in-flight uploads.
	DefaultStopTimeout = 5 * time.Second
)

// defaultOptions returns the default decoder options.
func defaultOptions() options {
	return options{
		fallbackFPS: DefaultFallbackFPS,
		stopTimeout: DefaultStopTimeout,
	}
}

// WithMixer plays the audio track through m. Without a mixer the audio
// track is ignored.
func WithMixer(m mixer.Mixer) Option {
	return func(o *options) {
		o.mixer = m
	}
}

// WithRegistry resolves containers and codecs through r instead of
// DefaultRegistry.
func WithRegistry(r *codec.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithMipmaps allocates a full mip chain for every decoded frame and
// regenerates it after conversion.
func WithMipmaps(enable bool) Option {
	return func(o *options) {
		o.mipmaps = enable
	}
}

// WithFallbackFPS sets the frame rate assumed for streams that declare
// none. Non-positive values are ignored.
func WithFallbackFPS(fps float64) Option {
	return func(o *options) {
		if fps > 0 {
			o.fallbackFPS = fps
		}
	}
}

// WithStopTimeout bounds how long Stop and Seek wait for in-flight
// uploads. Non-positive values are ignored.
func WithStopTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.stopTimeout = d
		}
	}
}

// WithClock replaces the monotonic clock used for audio timestamps.
// Intended for tests.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}
