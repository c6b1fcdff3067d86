// Package cmd implements the CLI commands for vdec.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gogpu/vdec"
)

// Version is set by the build.
var Version = "dev"

// cfgFile holds the config file path from the --config flag.
var cfgFile string

// cfgViper holds the layered configuration: flags, VDEC_* environment
// variables, the config file and defaults, in that order.
var cfgViper = viper.New()

var rootCmd = &cobra.Command{
	Use:     "vdec",
	Short:   "Decode and present media files",
	Version: Version,
	Long: `vdec decodes media files into images paced against audio playback.

It runs the full decode pipeline on the software device and mixer: a
decode goroutine, GPU-style uploads on a worker pool and a presentation
loop that follows the audio clock.

Configuration is read from $HOME/.vdec.yaml or ./.vdec.yaml and can be
overridden with VDEC_* environment variables, for example:
  VDEC_PLAY_WORKERS=2 vdec play clip.y4m`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.vdec.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	mustBindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads the config file and environment.
func initConfig() {
	SetDefaults(cfgViper)

	if cfgFile != "" {
		cfgViper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			cfgViper.AddConfigPath(home)
		}
		cfgViper.AddConfigPath(".")
		cfgViper.SetConfigType("yaml")
		cfgViper.SetConfigName(".vdec")
	}

	cfgViper.SetEnvPrefix("VDEC")
	cfgViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	cfgViper.AutomaticEnv()

	if err := cfgViper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", cfgViper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Reading config file:", err)
	}
}

// initLogging installs the configured logger for vdec and the process.
func initLogging() error {
	cfg, err := Load(cfgViper)
	if err != nil {
		return err
	}
	logger, err := NewLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	vdec.SetLogger(logger)
	return nil
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := cfgViper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}
