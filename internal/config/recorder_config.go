// Helpers mapping the flat configuration onto the package-specific config
// types of the recorder, storage and logging layers.
package config

import (
	"github.com/mikeyg42/framecoder/internal/recorder/buffer"
	"github.com/mikeyg42/framecoder/internal/recorder/encoder"
	"github.com/mikeyg42/framecoder/internal/recorder/metadata"
	"github.com/mikeyg42/framecoder/internal/recorder/output"
	"github.com/mikeyg42/framecoder/internal/recorder/recorderlog"
	"github.com/mikeyg42/framecoder/internal/recorder/storage"
)

// StreamInfo describes the raw frames the capture source produces.
func (c *Config) StreamInfo() buffer.StreamInfo {
	info := buffer.NewStreamInfo(c.Video.Width, c.Video.Height)
	if c.Video.Stride > 0 {
		info.Stride = c.Video.Stride
	}
	return info
}

// EncoderConfig maps codec, video and metadata settings for encoder.New.
func (c *Config) EncoderConfig() encoder.Config {
	format, err := metadata.ParseFormat(c.Metadata.Format)
	if err != nil {
		format = metadata.FormatJSON
	}
	return encoder.Config{
		Codec:          c.Codec.Name,
		Info:           c.StreamInfo(),
		FrameRate:      c.Video.FrameRate,
		Bitrate:        c.Codec.Bitrate,
		KeyframePeriod: c.Codec.KeyframePeriod,
		Quality:        c.Codec.Quality,
		MetadataPath:   c.Metadata.Path,
		MetadataFormat: format,
	}
}

// OutputConfig maps output settings for output.New.
func (c *Config) OutputConfig() output.Config {
	return output.Config{
		Kind:          output.Kind(c.Output.Kind),
		Path:          c.Output.Path,
		TimestampPath: c.Output.Timestamps,
		Segment:       c.Output.Segment,
		CircularBytes: c.Output.CircularBytes,
		Width:         c.Video.Width,
		Height:        c.Video.Height,
		FrameRate:     c.Video.FrameRate,
	}
}

// StorageConfigs maps archive and catalog settings to storage-package types.
func (c *Config) StorageConfigs() (storage.MinIOConfig, storage.PostgresConfig) {
	m := c.Archive.MinIO
	minioCfg := storage.MinIOConfig{
		Endpoint:        m.Endpoint,
		AccessKeyID:     m.AccessKeyID,
		SecretAccessKey: m.SecretAccessKey,
		UseSSL:          m.UseSSL,
		Bucket:          m.Bucket,
		Region:          m.Region,
		MaxUploads:      m.MaxUploads,
		MaxRetries:      m.MaxRetries,
		RetryBackoff:    m.RetryBackoff,
	}

	p := c.Catalog.Postgres
	pgCfg := storage.PostgresConfig{
		Host:           p.Host,
		Port:           p.Port,
		Database:       p.Database,
		Username:       p.Username,
		Password:       p.Password,
		SSLMode:        p.SSLMode,
		MaxConnections: p.MaxConnections,
	}
	return minioCfg, pgCfg
}

// LoggerConfig maps log settings for recorderlog.New.
func (c *Config) LoggerConfig() recorderlog.Config {
	return recorderlog.Config{Level: c.Log.Level, Format: c.Log.Format}
}
