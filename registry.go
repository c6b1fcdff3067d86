package vdec

import (
	"github.com/gogpu/vdec/codec"
	"github.com/gogpu/vdec/codec/mpegts"
	"github.com/gogpu/vdec/codec/wav"
	"github.com/gogpu/vdec/codec/y4m"
)

// DefaultRegistry returns a new registry with the containers and codecs
// that ship with the module: Y4M raw video, WAV PCM audio and MPEG-TS.
// MPEG-TS carries compressed codecs; their decoders must be registered
// by the application.
func DefaultRegistry() *codec.Registry {
	r := codec.NewRegistry()
	y4m.Register(r)
	wav.Register(r)
	mpegts.Register(r)
	return r
}
