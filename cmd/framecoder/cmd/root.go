// Package cmd implements the framecoder CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	// Codec backends and the camera driver register themselves on import.
	_ "github.com/mikeyg42/framecoder/internal/recorder/encoder/mediacodec"
	_ "github.com/mikeyg42/framecoder/internal/recorder/encoder/mjpeg"
	_ "github.com/pion/mediadevices/pkg/driver/camera"

	"github.com/mikeyg42/framecoder/internal/config"
	"github.com/mikeyg42/framecoder/internal/recorder/recorderlog"
)

var (
	cfgFile string
	v       = viper.New()
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "framecoder",
	Short:         "Capture and encode raw video frames",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `framecoder feeds raw I420 frames from a camera or a test pattern
through an encoder backend (yuv420, mjpeg, vp8, h264) and writes the result
to a file, a circular buffer or a WebM container, with per-frame metadata
alongside. Finished sessions can be archived to MinIO and catalogued in
PostgreSQL.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initConfig()
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./framecoder.yaml or /etc/framecoder/framecoder.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "console", "log format (console, json)")
	mustBindPFlag("log.level", pf.Lookup("log-level"))
	mustBindPFlag("log.format", pf.Lookup("log-format"))
}

// initConfig loads configuration and installs the global logger.
func initConfig() error {
	loaded, err := config.LoadInto(v, cfgFile)
	if err != nil {
		return err
	}
	logger, err := recorderlog.New(loaded.LoggerConfig())
	if err != nil {
		return err
	}
	recorderlog.ReplaceGlobal(logger)
	cfg = loaded
	return nil
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}
