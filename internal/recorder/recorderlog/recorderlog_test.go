package recorderlog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNamedAndWithCarryContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core)).Named("encoder").Named("yuv420").With(String("session", "abc"))

	l.Info("frame done", Int64("pts", 33000), Error(errors.New("boom")))

	entries := logs.All()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "encoder.yuv420", e.LoggerName)
	assert.Equal(t, "frame done", e.Message)
	ctx := e.ContextMap()
	assert.Equal(t, "abc", ctx["session"])
	assert.Equal(t, int64(33000), ctx["pts"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Level: "info", Format: "xml"})
	assert.Error(t, err)

	l, err := New(Config{Level: "warning", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestReplaceGlobalIgnoresNil(t *testing.T) {
	prev := L()
	t.Cleanup(func() { ReplaceGlobal(prev) })

	ReplaceGlobal(nil)
	assert.Same(t, prev, L())

	next := NewNop()
	ReplaceGlobal(next)
	assert.Same(t, next, L())
}
