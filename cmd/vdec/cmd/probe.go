package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/vdec"
	"github.com/gogpu/vdec/codec"
)

var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Describe the streams of a media file",
	Long: `Probe opens a container and prints its streams as YAML, including
whether a decoder for each stream is registered.

Examples:
  # List streams
  vdec probe clip.ts

  # Also read the whole file and count packets per stream
  vdec probe --packets clip.ts`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetBool("packets")
		return probe(cmd.OutOrStdout(), vdec.DefaultRegistry(), args[0], count)
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().Bool("packets", false, "read the whole file and count packets per stream")
}

// ProbeResult is the probe output.
type ProbeResult struct {
	File    string        `yaml:"file"`
	Streams []ProbeStream `yaml:"streams"`
}

// ProbeStream describes one elementary stream.
type ProbeStream struct {
	Index     int     `yaml:"index"`
	Type      string  `yaml:"type"`
	Codec     string  `yaml:"codec"`
	Decodable bool    `yaml:"decodable"`
	TimeBase  string  `yaml:"time_base"`
	Duration  float64 `yaml:"duration,omitempty"`
	Packets   *int    `yaml:"packets,omitempty"`

	Width       int    `yaml:"width,omitempty"`
	Height      int    `yaml:"height,omitempty"`
	FrameRate   string `yaml:"frame_rate,omitempty"`
	PixelFormat string `yaml:"pixel_format,omitempty"`
	ColorSpace  string `yaml:"color_space,omitempty"`
	ColorRange  string `yaml:"color_range,omitempty"`

	SampleRate   int    `yaml:"sample_rate,omitempty"`
	Channels     int    `yaml:"channels,omitempty"`
	SampleFormat string `yaml:"sample_format,omitempty"`
}

func rational(r codec.Rational) string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

func describe(reg *codec.Registry, s codec.StreamInfo) ProbeStream {
	ps := ProbeStream{
		Index:    s.Index,
		Type:     s.Type.String(),
		Codec:    string(s.Codec),
		TimeBase: rational(s.TimeBase),
		Duration: s.Duration,
	}
	switch s.Type {
	case codec.MediaVideo:
		ps.Decodable = reg.HasVideo(s.Codec)
		ps.Width, ps.Height = s.Width, s.Height
		if !s.FrameRate.IsZero() {
			ps.FrameRate = rational(s.FrameRate)
		}
		ps.PixelFormat = s.PixelFormat.String()
		ps.ColorSpace = s.Color.Space.String()
		ps.ColorRange = s.Color.Range.String()
	case codec.MediaAudio:
		ps.Decodable = reg.HasAudio(s.Codec)
		ps.SampleRate = s.SampleRate
		ps.Channels = s.Channels
		ps.SampleFormat = s.SampleFormat.String()
	}
	return ps
}

// probe writes the streams of path as YAML to w.
func probe(w io.Writer, reg *codec.Registry, path string, countPackets bool) error {
	demux, err := reg.OpenDemuxer(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer demux.Close()

	res := ProbeResult{File: path}
	for _, s := range demux.Streams() {
		res.Streams = append(res.Streams, describe(reg, s))
	}

	if countPackets {
		counts, err := countStreamPackets(demux, len(res.Streams))
		if err != nil {
			return err
		}
		for i := range res.Streams {
			n := counts[res.Streams[i].Index]
			res.Streams[i].Packets = &n
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encoding probe result: %w", err)
	}
	return enc.Close()
}

func countStreamPackets(demux codec.Demuxer, streams int) (map[int]int, error) {
	counts := make(map[int]int, streams)
	for {
		pkt, err := demux.ReadPacket()
		if errors.Is(err, io.EOF) {
			return counts, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading packets: %w", err)
		}
		counts[pkt.StreamIndex]++
	}
}
