package codec

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// DemuxerFactory opens a container.
type DemuxerFactory func(path string) (Demuxer, error)

// VideoDecoderFactory creates a decoder for a video stream.
type VideoDecoderFactory func(info StreamInfo) (VideoDecoder, error)

// AudioDecoderFactory creates a decoder for an audio stream.
type AudioDecoderFactory func(info StreamInfo) (AudioDecoder, error)

// Registry maps container extensions and codec IDs to implementations.
//
// A Registry is an ordinary value: create one, register what the
// application supports and pass it to the decoder. Registering under an
// existing key replaces the previous entry.
//
// Thread safety: Registry is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	containers map[string]DemuxerFactory
	video      map[ID]VideoDecoderFactory
	audio      map[ID]AudioDecoderFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		containers: make(map[string]DemuxerFactory),
		video:      make(map[ID]VideoDecoderFactory),
		audio:      make(map[ID]AudioDecoderFactory),
	}
}

func normExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// RegisterContainer registers a demuxer for a file extension ("y4m", ".ts").
func (r *Registry) RegisterContainer(ext string, f DemuxerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers[normExt(ext)] = f
}

// RegisterVideo registers a video decoder.
func (r *Registry) RegisterVideo(id ID, f VideoDecoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.video[id] = f
}

// RegisterAudio registers an audio decoder.
func (r *Registry) RegisterAudio(id ID, f AudioDecoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[id] = f
}

// UnregisterVideo removes a video decoder.
func (r *Registry) UnregisterVideo(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.video, id)
}

// Containers returns the registered extensions, sorted.
func (r *Registry) Containers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.containers))
	for name := range r.containers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// HasVideo reports whether a video decoder is registered for id.
func (r *Registry) HasVideo(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.video[id]
	return ok
}

// HasAudio reports whether an audio decoder is registered for id.
func (r *Registry) HasAudio(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.audio[id]
	return ok
}

// OpenDemuxer opens path with the demuxer registered for its extension.
func (r *Registry) OpenDemuxer(path string) (Demuxer, error) {
	ext := normExt(filepath.Ext(path))
	r.mu.RLock()
	f, ok := r.containers[ext]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContainer, ext)
	}
	return f(path)
}

// NewVideoDecoder creates a decoder for a video stream.
func (r *Registry) NewVideoDecoder(info StreamInfo) (VideoDecoder, error) {
	r.mu.RLock()
	f, ok := r.video[info.Codec]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: video %q", ErrDecoderNotFound, info.Codec)
	}
	return f(info)
}

// NewAudioDecoder creates a decoder for an audio stream.
func (r *Registry) NewAudioDecoder(info StreamInfo) (AudioDecoder, error) {
	r.mu.RLock()
	f, ok := r.audio[info.Codec]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio %q", ErrDecoderNotFound, info.Codec)
	}
	return f(info)
}
