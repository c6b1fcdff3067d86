package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the vdec command configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Play    PlayConfig    `mapstructure:"play"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// PlayConfig configures the play command.
type PlayConfig struct {
	// Workers is the upload worker count; 0 uses GOMAXPROCS.
	Workers int `mapstructure:"workers"`

	// Mute skips audio; the presentation loop then follows the host clock.
	Mute       bool          `mapstructure:"mute"`
	Audio      string        `mapstructure:"audio"` // separate audio file
	SampleRate int           `mapstructure:"sample_rate"`
	Channels   int           `mapstructure:"channels"`
	MixPeriod  time.Duration `mapstructure:"mix_period"`

	// Refresh is the presentation rate in Hz.
	Refresh float64 `mapstructure:"refresh"`

	Mipmaps     bool          `mapstructure:"mipmaps"`
	FallbackFPS float64       `mapstructure:"fallback_fps"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`

	Start    float64       `mapstructure:"start"`
	Duration time.Duration `mapstructure:"duration"` // 0 plays to the end

	StatsInterval time.Duration `mapstructure:"stats_interval"` // 0 disables
	Snapshot      string        `mapstructure:"snapshot"`
}

// SetDefaults sets the default configuration values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")

	v.SetDefault("play.workers", 0)
	v.SetDefault("play.mute", false)
	v.SetDefault("play.audio", "")
	v.SetDefault("play.sample_rate", 48000)
	v.SetDefault("play.channels", 2)
	v.SetDefault("play.mix_period", "10ms")
	v.SetDefault("play.refresh", 60.0)
	v.SetDefault("play.mipmaps", false)
	v.SetDefault("play.fallback_fps", 60.0)
	v.SetDefault("play.stop_timeout", "5s")
	v.SetDefault("play.start", 0.0)
	v.SetDefault("play.duration", "0s")
	v.SetDefault("play.stats_interval", "2s")
	v.SetDefault("play.snapshot", "")
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the pipeline cannot use.
func (c *Config) Validate() error {
	var errs []error
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	p := &c.Play
	if p.Workers < 0 {
		errs = append(errs, errors.New("play.workers must not be negative"))
	}
	if p.SampleRate <= 0 {
		errs = append(errs, errors.New("play.sample_rate must be positive"))
	}
	if p.Channels <= 0 {
		errs = append(errs, errors.New("play.channels must be positive"))
	}
	if p.MixPeriod <= 0 {
		errs = append(errs, errors.New("play.mix_period must be positive"))
	}
	if p.Refresh <= 0 {
		errs = append(errs, errors.New("play.refresh must be positive"))
	}
	if p.Mute && p.Audio != "" {
		errs = append(errs, errors.New("play.audio cannot be combined with play.mute"))
	}
	if p.Start < 0 {
		errs = append(errs, errors.New("play.start must not be negative"))
	}
	if p.Duration < 0 || p.StatsInterval < 0 {
		errs = append(errs, errors.New("play durations must not be negative"))
	}
	return errors.Join(errs...)
}

// mixFrames is the mixer block size for one mix period.
func (p *PlayConfig) mixFrames() int {
	return max(int(float64(p.SampleRate)*p.MixPeriod.Seconds()), 1)
}

func parseLevel(s string) (slog.Level, error) {
	s = strings.ToLower(s)
	if s == "warning" {
		s = "warn"
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// NewLogger builds the slog logger described by cfg, writing to w.
func NewLogger(cfg LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("logging.format: unknown format %q", cfg.Format)
	}
}
