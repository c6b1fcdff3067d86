package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/vdec/codec"
	"github.com/gogpu/vdec/codec/codectest"
)

func TestProbe(t *testing.T) {
	reg := fakeRegistry(codectest.Script{
		Video: video(10),
		Audio: &codectest.AudioTrack{
			SampleRate: 48000,
			Channels:   2,
			Format:     codec.SampleFormatS16,
			Packets:    20,
		},
	})

	var buf bytes.Buffer
	require.NoError(t, probe(&buf, reg, "clip.fake", true))

	var res ProbeResult
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &res))
	assert.Equal(t, "clip.fake", res.File)
	require.Len(t, res.Streams, 2)

	v := res.Streams[0]
	assert.Equal(t, "video", v.Type)
	assert.Equal(t, string(codectest.IDFakeVideo), v.Codec)
	assert.True(t, v.Decodable)
	assert.Equal(t, "1/30", v.TimeBase)
	assert.Equal(t, "30/1", v.FrameRate)
	assert.Equal(t, 16, v.Width)
	assert.Equal(t, "yuv420p", v.PixelFormat)
	require.NotNil(t, v.Packets)
	assert.Equal(t, 10, *v.Packets)

	a := res.Streams[1]
	assert.Equal(t, "audio", a.Type)
	assert.Equal(t, 48000, a.SampleRate)
	assert.Equal(t, "s16", a.SampleFormat)
	require.NotNil(t, a.Packets)
	assert.Equal(t, 20, *a.Packets)
}

func TestProbe_UnregisteredDecoder(t *testing.T) {
	reg := fakeRegistry(codectest.Script{Video: video(1)})
	reg.UnregisterVideo(codectest.IDFakeVideo)

	var buf bytes.Buffer
	require.NoError(t, probe(&buf, reg, "clip.fake", false))

	var res ProbeResult
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &res))
	require.Len(t, res.Streams, 1)
	assert.False(t, res.Streams[0].Decodable)
	assert.Nil(t, res.Streams[0].Packets)
}

func TestProbe_UnknownContainer(t *testing.T) {
	err := probe(&bytes.Buffer{}, codec.NewRegistry(), "clip.mkv", false)
	require.ErrorIs(t, err, codec.ErrUnknownContainer)
}

func TestProbeCommand(t *testing.T) {
	path := writeY4M(t, 3)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"probe", "--packets", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	var res ProbeResult
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &res))
	require.Len(t, res.Streams, 1)
	assert.Equal(t, string(codec.IDRawVideo), res.Streams[0].Codec)
	assert.True(t, res.Streams[0].Decodable)
	assert.Equal(t, 3, *res.Streams[0].Packets)
}
