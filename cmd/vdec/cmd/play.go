package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/vdec"
	"github.com/gogpu/vdec/codec"
	"github.com/gogpu/vdec/gpu/software"
	"github.com/gogpu/vdec/integration/vdeccanvas"
	"github.com/gogpu/vdec/internal/parallel"
	"github.com/gogpu/vdec/mixer"
)

var printer = message.NewPrinter(language.English)

var playCmd = &cobra.Command{
	Use:   "play <file>",
	Short: "Decode and present a media file",
	Long: `Play decodes a media file and presents it at the configured refresh
rate, following the audio clock when the file has audio.

Frames are converted on the software device; audio is mixed by the
software mixer and discarded. Stats lines report how far the decoder
runs ahead and how many frames the presentation rate drops.

Examples:
  # Play a file to the end
  vdec play clip.y4m

  # Raw video with a separate soundtrack
  vdec play --audio track.wav clip.y4m

  # Present at 24 Hz from 10s in, for 5 seconds, and keep the last frame
  vdec play --refresh 24 --start 10 --duration 5s --snapshot last.png clip.ts`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	f := playCmd.Flags()
	f.Int("workers", 0, "upload worker goroutines (0 uses GOMAXPROCS)")
	f.Bool("mute", false, "skip audio and follow the host clock")
	f.Float64("refresh", 60, "presentation rate in Hz")
	f.Bool("mipmaps", false, "generate mipmaps for decoded frames")
	f.Float64("start", 0, "seek to this position in seconds before playing")
	f.Duration("duration", 0, "stop after this much playback (0 plays to the end)")
	f.Duration("stats-interval", 2*time.Second, "interval between stats lines (0 disables)")
	f.String("snapshot", "", "write the last presented frame to this PNG file")
	f.String("audio", "", "play the audio of this file instead of the one in <file>")

	for key, name := range map[string]string{
		"play.workers":        "workers",
		"play.mute":           "mute",
		"play.refresh":        "refresh",
		"play.mipmaps":        "mipmaps",
		"play.start":          "start",
		"play.duration":       "duration",
		"play.stats_interval": "stats-interval",
		"play.snapshot":       "snapshot",
		"play.audio":          "audio",
	} {
		mustBindPFlag(key, f.Lookup(name))
	}
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := Load(cfgViper)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	sum, err := play(ctx, cfg.Play, vdec.DefaultRegistry(), args[0], out)
	if err != nil {
		return err
	}
	sum.print(out)

	if cfg.Play.Snapshot != "" {
		if err := writeSnapshot(cfg.Play.Snapshot, sum); err != nil {
			return err
		}
		printer.Fprintf(out, "snapshot  %s\n", cfg.Play.Snapshot)
	}
	return nil
}

// summary describes a finished play session.
type summary struct {
	Session   uuid.UUID
	Width     int
	Height    int
	Presented int
	LastPTS   float64
	Elapsed   time.Duration
	Stats     vdec.Stats

	// Pixels is the last presented frame, RGBA8.
	Pixels []byte
}

func (s *summary) print(w io.Writer) {
	printer.Fprintf(w, "session   %s\n", s.Session)
	printer.Fprintf(w, "video     %dx%d, %d slots\n", s.Width, s.Height, s.Stats.Slots)
	printer.Fprintf(w, "presented %d frames in %.2fs, last pts %.3fs\n", s.Presented, s.Elapsed.Seconds(), s.LastPTS)
	printer.Fprintf(w, "decoded   %d frames, %d dropped (%d overwritten)\n",
		s.Stats.FramesDecoded, s.Stats.DroppedFrames, s.Stats.Trampled)
}

// play runs one session: it opens path, decodes on a software device
// with uploads on a worker pool, mixes audio and presents frames at
// cfg.Refresh until the file ends, cfg.Duration passes or ctx is done.
func play(ctx context.Context, cfg PlayConfig, reg *codec.Registry, path string, out io.Writer) (summary, error) {
	opts := []vdec.Option{
		vdec.WithRegistry(reg),
		vdec.WithMipmaps(cfg.Mipmaps),
		vdec.WithFallbackFPS(cfg.FallbackFPS),
		vdec.WithStopTimeout(cfg.StopTimeout),
	}
	var mix *mixer.Software
	if !cfg.Mute {
		mix = mixer.NewSoftware(float32(cfg.SampleRate), cfg.Channels, cfg.mixFrames())
		defer mix.Close()
		opts = append(opts, vdec.WithMixer(mix))
	}

	dec, err := open(reg, path, cfg.Audio, opts)
	if err != nil {
		return summary{}, err
	}
	defer dec.Close()

	dev := software.NewDevice()
	defer dev.Close()
	workers := parallel.NewWorkerPool(cfg.Workers)
	defer workers.Close()

	if err := dec.BeginDeviceContext(dev, workers); err != nil {
		return summary{}, fmt.Errorf("starting device context: %w", err)
	}
	defer dec.EndDeviceContext()

	player, err := vdeccanvas.New(dec, dev)
	if err != nil {
		return summary{}, err
	}
	defer player.Close()

	if cfg.Start > 0 {
		err = player.Seek(cfg.Start)
	} else {
		err = dec.Play()
	}
	if err != nil {
		return summary{}, fmt.Errorf("starting playback: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if mix != nil {
		g.Go(func() error {
			err := mix.Run(gctx, cfg.MixPeriod, nil)
			if errors.Is(err, context.Canceled) || errors.Is(err, mixer.ErrClosed) {
				return nil
			}
			return err
		})
	}

	if cfg.StatsInterval > 0 {
		g.Go(func() error {
			reportStats(gctx, dec, cfg.StatsInterval, out)
			return nil
		})
	}

	sum := summary{
		Session: dec.Session(),
		Width:   dec.Width(),
		Height:  dec.Height(),
	}
	start := time.Now()
	g.Go(func() error {
		defer cancel()
		return present(gctx, player, cfg, start, &sum)
	})

	if err := g.Wait(); err != nil {
		return summary{}, err
	}
	sum.Elapsed = time.Since(start)
	sum.Stats = dec.Stats()
	if px := player.Pixels(); px != nil {
		sum.Pixels = append([]byte(nil), px...)
	}
	return sum, nil
}

// open opens path, pairing its video with the audio of audioPath when
// one is given.
func open(reg *codec.Registry, path, audioPath string, opts []vdec.Option) (*vdec.Decoder, error) {
	if audioPath == "" {
		dec, err := vdec.Open(path, opts...)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		return dec, nil
	}

	video, err := reg.OpenDemuxer(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	audio, err := reg.OpenDemuxer(audioPath)
	if err != nil {
		_ = video.Close()
		return nil, fmt.Errorf("opening %s: %w", audioPath, err)
	}
	dec, err := vdec.NewDecoder(codec.Join(video, audio), opts...)
	if err != nil {
		return nil, fmt.Errorf("opening %s with %s: %w", path, audioPath, err)
	}
	return dec, nil
}

// present updates player once per refresh tick.
func present(ctx context.Context, player *vdeccanvas.Player, cfg PlayConfig, start time.Time, sum *summary) error {
	tick := time.NewTicker(time.Duration(float64(time.Second) / cfg.Refresh))
	defer tick.Stop()
	for {
		elapsed := time.Since(start)
		changed, err := player.Update(ctx, elapsed.Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if changed {
			sum.Presented++
			sum.LastPTS = player.PTS()
		}
		if player.Ended() || (cfg.Duration > 0 && elapsed >= cfg.Duration) {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

func reportStats(ctx context.Context, dec *vdec.Decoder, every time.Duration, w io.Writer) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		st := dec.Stats()
		printer.Fprintf(w, "clock %7.3fs  ready %d/%d  decoded %d  dropped %d  audio %d frames %d samples\n",
			dec.EstimatedAudioPlaybackTimestampRaw(), st.Ready, st.Slots,
			st.FramesDecoded, st.DroppedFrames, st.AudioBufferedFrames, st.AudioBufferedSamples)
	}
}

func writeSnapshot(path string, sum summary) error {
	if sum.Pixels == nil {
		return errors.New("snapshot: no frame was presented")
	}
	img := &image.RGBA{
		Pix:    sum.Pixels,
		Stride: sum.Width * 4,
		Rect:   image.Rect(0, 0, sum.Width, sum.Height),
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: %w", err)
	}
	return f.Close()
}
