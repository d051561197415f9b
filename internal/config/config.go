// Package config provides configuration management for framecoder using
// Viper. Values come from defaults, an optional YAML file, and FRAMECODER_
// environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mikeyg42/framecoder/internal/recorder/encoder"
	"github.com/mikeyg42/framecoder/internal/recorder/metadata"
	"github.com/mikeyg42/framecoder/internal/recorder/output"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "FRAMECODER"

const (
	defaultWidth           = 640
	defaultHeight          = 480
	defaultFrameRate       = 30.0
	defaultBitrate         = 1_000_000
	defaultKeyframePeriod  = 30
	defaultBuffers         = 6
	defaultMonitorInterval = 5 * time.Second
	defaultMaxUploads      = 4
	defaultMaxRetries      = 5
	defaultRetryBackoff    = 500 * time.Millisecond
	defaultShutdownTimeout = 10 * time.Second
	defaultMinFreeMB       = 64
)

// Config holds all configuration for the application.
type Config struct {
	Codec    CodecConfig    `mapstructure:"codec"`
	Video    VideoConfig    `mapstructure:"video"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Output   OutputConfig   `mapstructure:"output"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Log      LogConfig      `mapstructure:"log"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
}

// CodecConfig selects and tunes the encoder backend.
type CodecConfig struct {
	Name           string `mapstructure:"name"`
	Bitrate        int    `mapstructure:"bitrate"`
	KeyframePeriod int    `mapstructure:"keyframe_period"`
	Quality        int    `mapstructure:"quality"`
}

// VideoConfig describes the raw stream.
type VideoConfig struct {
	Width     int     `mapstructure:"width"`
	Height    int     `mapstructure:"height"`
	Stride    int     `mapstructure:"stride"` // 0 = width
	FrameRate float64 `mapstructure:"framerate"`
}

// CaptureConfig selects the frame source.
type CaptureConfig struct {
	Source  string `mapstructure:"source"` // testpattern, camera
	Device  string `mapstructure:"device"` // camera label, "" = first found
	Buffers int    `mapstructure:"buffers"`
	Frames  int    `mapstructure:"frames"` // 0 = until interrupted
}

// MetadataConfig controls the per-frame metadata stream.
type MetadataConfig struct {
	Path   string `mapstructure:"path"` // "" disables, "-" is stdout
	Format string `mapstructure:"format"`
}

// OutputConfig controls where encoded chunks go.
type OutputConfig struct {
	Kind          string        `mapstructure:"kind"`
	Path          string        `mapstructure:"path"`
	Timestamps    string        `mapstructure:"timestamps"`
	Segment       time.Duration `mapstructure:"segment"`
	CircularBytes int           `mapstructure:"circular_bytes"`
	MinFreeMB     int           `mapstructure:"min_free_mb"` // 0 skips the disk space check
}

// PipelineConfig tunes the encoder worker.
type PipelineConfig struct {
	WaitTimeout     time.Duration `mapstructure:"wait_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ArchiveConfig enables upload of session files to MinIO.
type ArchiveConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Prefix  string      `mapstructure:"prefix"`
	MinIO   MinIOConfig `mapstructure:"minio"`
}

// MinIOConfig holds object store connection settings.
type MinIOConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	Bucket          string        `mapstructure:"bucket"`
	Region          string        `mapstructure:"region"`
	MaxUploads      int           `mapstructure:"max_uploads"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
}

// CatalogConfig enables recording sessions in PostgreSQL.
type CatalogConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds database connection settings.
type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"sslmode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// LogConfig selects the zap logger setup.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MonitorConfig controls the periodic stats reporter.
type MonitorConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads configuration from file and environment variables. An empty
// configPath searches the working directory and /etc/framecoder for
// framecoder.yaml; a missing file is not an error.
func Load(configPath string) (*Config, error) {
	return LoadInto(viper.New(), configPath)
}

// LoadInto is Load on a caller-owned Viper, so command flags bound to v
// take precedence over everything else.
func LoadInto(v *viper.Viper, configPath string) (*Config, error) {
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("framecoder")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/framecoder")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return Unmarshal(v)
}

// Unmarshal decodes and validates v. Commands call it after binding flags.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults registers every key so environment overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("codec.name", string(encoder.CodecYUV420))
	v.SetDefault("codec.bitrate", defaultBitrate)
	v.SetDefault("codec.keyframe_period", defaultKeyframePeriod)
	v.SetDefault("codec.quality", 0)

	v.SetDefault("video.width", defaultWidth)
	v.SetDefault("video.height", defaultHeight)
	v.SetDefault("video.stride", 0)
	v.SetDefault("video.framerate", defaultFrameRate)

	v.SetDefault("capture.source", "testpattern")
	v.SetDefault("capture.device", "")
	v.SetDefault("capture.buffers", defaultBuffers)
	v.SetDefault("capture.frames", 0)

	v.SetDefault("metadata.path", "")
	v.SetDefault("metadata.format", string(metadata.FormatJSON))

	v.SetDefault("output.kind", string(output.KindFile))
	v.SetDefault("output.path", "")
	v.SetDefault("output.timestamps", "")
	v.SetDefault("output.segment", time.Duration(0))
	v.SetDefault("output.circular_bytes", output.DefaultCircularBytes)
	v.SetDefault("output.min_free_mb", defaultMinFreeMB)

	v.SetDefault("pipeline.wait_timeout", encoder.DefaultWaitTimeout)
	v.SetDefault("pipeline.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.prefix", "sessions")
	v.SetDefault("archive.minio.endpoint", "localhost:9000")
	v.SetDefault("archive.minio.access_key_id", "")
	v.SetDefault("archive.minio.secret_access_key", "")
	v.SetDefault("archive.minio.use_ssl", false)
	v.SetDefault("archive.minio.bucket", "framecoder")
	v.SetDefault("archive.minio.region", "")
	v.SetDefault("archive.minio.max_uploads", defaultMaxUploads)
	v.SetDefault("archive.minio.max_retries", defaultMaxRetries)
	v.SetDefault("archive.minio.retry_backoff", defaultRetryBackoff)

	v.SetDefault("catalog.enabled", false)
	v.SetDefault("catalog.postgres.host", "localhost")
	v.SetDefault("catalog.postgres.port", 5432)
	v.SetDefault("catalog.postgres.database", "framecoder")
	v.SetDefault("catalog.postgres.username", "")
	v.SetDefault("catalog.postgres.password", "")
	v.SetDefault("catalog.postgres.sslmode", "disable")
	v.SetDefault("catalog.postgres.max_connections", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.interval", defaultMonitorInterval)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := encoder.ParseCodec(c.Codec.Name); err != nil {
		return fmt.Errorf("codec.name: %w", err)
	}
	if err := c.EncoderConfig().Validate(); err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	if err := c.StreamInfo().Validate(); err != nil {
		return fmt.Errorf("video: %w", err)
	}
	if c.Video.FrameRate <= 0 {
		return fmt.Errorf("video.framerate must be positive")
	}

	switch c.Capture.Source {
	case "testpattern", "camera":
	default:
		return fmt.Errorf("capture.source must be one of: testpattern, camera")
	}
	if c.Capture.Buffers < 1 {
		return fmt.Errorf("capture.buffers must be at least 1")
	}
	if c.Capture.Frames < 0 {
		return fmt.Errorf("capture.frames must not be negative")
	}

	if _, err := metadata.ParseFormat(c.Metadata.Format); err != nil {
		return fmt.Errorf("metadata.format: %w", err)
	}

	if _, err := output.ParseKind(c.Output.Kind); err != nil {
		return fmt.Errorf("output.kind: %w", err)
	}
	if c.Output.Segment < 0 {
		return fmt.Errorf("output.segment must not be negative")
	}
	if c.Output.MinFreeMB < 0 {
		return fmt.Errorf("output.min_free_mb must not be negative")
	}
	if c.Output.CircularBytes < 0 {
		return fmt.Errorf("output.circular_bytes must not be negative")
	}

	if c.Pipeline.WaitTimeout <= 0 {
		return fmt.Errorf("pipeline.wait_timeout must be positive")
	}
	if c.Pipeline.ShutdownTimeout <= 0 {
		return fmt.Errorf("pipeline.shutdown_timeout must be positive")
	}

	if c.Archive.Enabled {
		if c.Archive.MinIO.Endpoint == "" {
			return fmt.Errorf("archive.minio.endpoint is required when archiving")
		}
		if c.Archive.MinIO.Bucket == "" {
			return fmt.Errorf("archive.minio.bucket is required when archiving")
		}
	}
	if c.Catalog.Enabled {
		if c.Catalog.Postgres.Host == "" {
			return fmt.Errorf("catalog.postgres.host is required when cataloguing")
		}
		if c.Catalog.Postgres.Database == "" {
			return fmt.Errorf("catalog.postgres.database is required when cataloguing")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"console": true, "text": true, "json": true}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		return fmt.Errorf("log.format must be one of: console, json")
	}

	if c.Monitor.Enabled && c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}
	return nil
}
