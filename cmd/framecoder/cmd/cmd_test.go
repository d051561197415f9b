package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecsCommandListsBackends(t *testing.T) {
	var buf bytes.Buffer
	codecsCmd.SetOut(&buf)
	require.NoError(t, codecsCmd.RunE(codecsCmd, nil))

	out := buf.String()
	for _, name := range []string{"yuv420", "mjpeg", "vp8", "h264"} {
		assert.Regexp(t, name+`\s+true`, out)
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.True(t, strings.HasPrefix(buf.String(), "framecoder dev"))
}

func TestEncodeFlagsBoundToConfig(t *testing.T) {
	require.NoError(t, encodeCmd.Flags().Set("codec", "mjpeg"))
	require.NoError(t, encodeCmd.Flags().Set("frames", "7"))
	t.Cleanup(func() {
		_ = encodeCmd.Flags().Set("codec", "yuv420")
		_ = encodeCmd.Flags().Set("frames", "0")
	})

	require.NoError(t, initConfig())
	assert.Equal(t, "mjpeg", cfg.Codec.Name)
	assert.Equal(t, 7, cfg.Capture.Frames)
}
