package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeyg42/framecoder/internal/recorder/encoder"
	"github.com/mikeyg42/framecoder/internal/recorder/metadata"
	"github.com/mikeyg42/framecoder/internal/recorder/output"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := Unmarshal(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "yuv420", cfg.Codec.Name)
	assert.Equal(t, 640, cfg.Video.Width)
	assert.Equal(t, 480, cfg.Video.Height)
	assert.Equal(t, 30.0, cfg.Video.FrameRate)
	assert.Equal(t, "testpattern", cfg.Capture.Source)
	assert.Equal(t, 6, cfg.Capture.Buffers)
	assert.Equal(t, "json", cfg.Metadata.Format)
	assert.Equal(t, "file", cfg.Output.Kind)
	assert.Equal(t, output.DefaultCircularBytes, cfg.Output.CircularBytes)
	assert.Equal(t, encoder.DefaultWaitTimeout, cfg.Pipeline.WaitTimeout)
	assert.False(t, cfg.Archive.Enabled)
	assert.Equal(t, "sessions", cfg.Archive.Prefix)
	assert.False(t, cfg.Catalog.Enabled)
	assert.Equal(t, 5432, cfg.Catalog.Postgres.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framecoder.yaml")
	body := `
codec:
  name: vp8
  bitrate: 2000000
video:
  width: 1280
  height: 720
  framerate: 25
metadata:
  path: /tmp/meta.txt
  format: txt
output:
  kind: webm
  path: /tmp/out.webm
pipeline:
  wait_timeout: 50ms
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "vp8", cfg.Codec.Name)
	assert.Equal(t, 2000000, cfg.Codec.Bitrate)
	assert.Equal(t, 1280, cfg.Video.Width)
	assert.Equal(t, 25.0, cfg.Video.FrameRate)
	assert.Equal(t, 50*time.Millisecond, cfg.Pipeline.WaitTimeout)
	assert.Equal(t, 6, cfg.Capture.Buffers, "unset keys keep defaults")

	ec := cfg.EncoderConfig()
	assert.Equal(t, metadata.FormatText, ec.MetadataFormat)
	assert.Equal(t, "/tmp/meta.txt", ec.MetadataPath)
	assert.Equal(t, 1280, ec.Info.Stride)

	oc := cfg.OutputConfig()
	assert.Equal(t, output.KindWebM, oc.Kind)
	assert.Equal(t, 720, oc.Height)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framecoder.yaml")
	require.NoError(t, os.WriteFile(path, []byte("codec:\n  name: vp8\n"), 0o644))

	t.Setenv("FRAMECODER_CODEC_NAME", "mjpeg")
	t.Setenv("FRAMECODER_CAPTURE_FRAMES", "120")
	t.Setenv("FRAMECODER_ARCHIVE_MINIO_BUCKET", "clips")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mjpeg", cfg.Codec.Name)
	assert.Equal(t, 120, cfg.Capture.Frames)
	assert.Equal(t, "clips", cfg.Archive.MinIO.Bucket)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("codec: [\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown codec", func(c *Config) { c.Codec.Name = "av1" }, "codec.name"},
		{"quality out of range", func(c *Config) { c.Codec.Quality = 101 }, "codec"},
		{"odd width", func(c *Config) { c.Video.Width = 641 }, "video"},
		{"stride below width", func(c *Config) { c.Video.Stride = 320 }, "video"},
		{"zero framerate", func(c *Config) { c.Video.FrameRate = 0 }, "video.framerate"},
		{"unknown source", func(c *Config) { c.Capture.Source = "screen" }, "capture.source"},
		{"no buffers", func(c *Config) { c.Capture.Buffers = 0 }, "capture.buffers"},
		{"metadata format", func(c *Config) { c.Metadata.Format = "xml" }, "metadata.format"},
		{"output kind", func(c *Config) { c.Output.Kind = "mp4" }, "output.kind"},
		{"wait timeout", func(c *Config) { c.Pipeline.WaitTimeout = 0 }, "pipeline.wait_timeout"},
		{"shutdown timeout", func(c *Config) { c.Pipeline.ShutdownTimeout = -time.Second }, "pipeline.shutdown_timeout"},
		{"archive without bucket", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.MinIO.Bucket = ""
		}, "archive.minio.bucket"},
		{"catalog without host", func(c *Config) {
			c.Catalog.Enabled = true
			c.Catalog.Postgres.Host = ""
		}, "catalog.postgres.host"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"monitor interval", func(c *Config) {
			c.Monitor.Enabled = true
			c.Monitor.Interval = 0
		}, "monitor.interval"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestStorageConfigs(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Archive.MinIO.AccessKeyID = "key"
	cfg.Catalog.Postgres.Username = "rec"

	m, p := cfg.StorageConfigs()
	assert.Equal(t, "localhost:9000", m.Endpoint)
	assert.Equal(t, "framecoder", m.Bucket)
	assert.Equal(t, "key", m.AccessKeyID)
	assert.Equal(t, 5, m.MaxRetries)
	assert.Equal(t, "rec", p.Username)
	assert.Equal(t, "disable", p.SSLMode)

	lc := cfg.LoggerConfig()
	assert.Equal(t, "info", lc.Level)
	assert.Equal(t, "console", lc.Format)
}
