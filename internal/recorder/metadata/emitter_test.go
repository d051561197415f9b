package metadata

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONZeroRecords(t *testing.T) {
	var buf bytes.Buffer
	e, err := NewEmitter(&buf, FormatJSON)
	require.NoError(t, err)

	require.NoError(t, e.Close())
	assert.Equal(t, "[\n]\n", buf.String())
}

func TestJSONTwoRecords(t *testing.T) {
	var buf bytes.Buffer
	e, err := NewEmitter(&buf, FormatJSON)
	require.NoError(t, err)

	require.NoError(t, e.Write(NewRecord(Int("ExposureTime", 10000), Float("AnalogueGain", 1.5))))
	require.NoError(t, e.Write(NewRecord(Rectangle("ScalerCrop", 0, 0, 640, 480))))
	require.NoError(t, e.Close())

	want := "[" +
		"\n{" +
		"\n    \"ExposureTime\": 10000," +
		"\n    \"AnalogueGain\": 1.5" +
		"\n}," +
		"\n{" +
		"\n    \"ScalerCrop\": \"(0, 0)/640x480\"" +
		"\n}" +
		"\n]\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, 2, e.Records())
}

func TestJSONQuotesOnlySlashValues(t *testing.T) {
	var buf bytes.Buffer
	e, err := NewEmitter(&buf, FormatJSON)
	require.NoError(t, err)

	require.NoError(t, e.Write(NewRecord(
		String("Name", "imx708"),
		String("Ratio", "1/30"),
		Ints("FrameDurationLimits", 33333, 33333),
	)))
	require.NoError(t, e.Close())

	out := buf.String()
	assert.Contains(t, out, "\"Name\": imx708")
	assert.Contains(t, out, "\"Ratio\": \"1/30\"")
	assert.Contains(t, out, "\"FrameDurationLimits\": [ 33333, 33333 ]")
}

func TestTextFraming(t *testing.T) {
	var buf bytes.Buffer
	e, err := NewEmitter(&buf, FormatText)
	require.NoError(t, err)

	require.NoError(t, e.Write(NewRecord(Int("a", 1), Int("b", 2))))
	assert.Equal(t, "a=1\nb=2\n\n", buf.String())

	require.NoError(t, e.Write(NewRecord(Rectangle("c", 1, 2, 3, 4))))
	require.NoError(t, e.Close())
	assert.Equal(t, "a=1\nb=2\n\nc=(1, 2)/3x4\n\n", buf.String())
}

func TestCloseIsIdempotentAndStopsWrites(t *testing.T) {
	var buf bytes.Buffer
	e, err := NewEmitter(&buf, FormatJSON)
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Equal(t, "[\n]\n", buf.String())
	assert.Error(t, e.Write(NewRecord(Int("a", 1))))
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	e, err := Open(path, FormatJSON)
	require.NoError(t, err)
	require.NoError(t, e.Write(NewRecord(Bool("AeLocked", true))))
	require.NoError(t, e.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[\n{\n    \"AeLocked\": true\n}\n]\n", string(data))
}

func TestOpenFailures(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "meta.txt"), FormatText)
	assert.Error(t, err)

	_, err = Open("meta.yaml", Format("yaml"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestDisabledEmitter(t *testing.T) {
	e, err := Open("", FormatJSON)
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, e.Write(NewRecord(Int("a", 1))))
	assert.NoError(t, e.Close())
	assert.Zero(t, e.Records())
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"txt", FormatText, false},
		{"Txt", FormatText, false},
		{"", FormatJSON, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordIsImmutable(t *testing.T) {
	entries := []Entry{Int("a", 1)}
	rec := NewRecord(entries...)
	entries[0].Value = "changed"

	got := rec.Entries()
	got[0].Value = "also changed"

	v, ok := rec.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, "[ 0.5, 2 ]", Floats("g", 0.5, 2).Value)
	assert.Equal(t, "1920x1080", Size("s", 1920, 1080).Value)
}
