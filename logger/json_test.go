package logger

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var parsed map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &parsed))
		out = append(out, parsed)
	}
	return out
}

func TestJSONLoggerSink(t *testing.T) {
	var buf bytes.Buffer
	sinkLogger := NewJSONLoggerWithSink(&buf, LevelInfo)
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	sinkLogger.(*jsonLogger).now = func() time.Time { return ts }

	l := sinkLogger.WithPrefix("[cache]").With(map[string]interface{}{"namespace": "snaps"})
	l.Debug("dropped")
	l.Warn("backend %s unreachable", "redis")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "WARNING", lines[0]["level"])
	assert.Equal(t, "backend redis unreachable", lines[0]["msg"])
	assert.Equal(t, "cache", lines[0]["prefix"])
	assert.Equal(t, map[string]interface{}{"namespace": "snaps"}, lines[0]["fields"])
	assert.Equal(t, ts.Format(time.RFC3339), lines[0]["time"])
}

func TestJSONLoggerWithDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	parent := NewJSONLoggerWithSink(&buf, LevelTrace)
	_ = parent.With(map[string]interface{}{"a": 1})
	parent.Info("plain")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "fields")
	assert.NotContains(t, lines[0], "prefix")
}

func TestJSONLoggerWithPrefixDeduplicates(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLoggerWithSink(&buf, LevelTrace).WithPrefix("test").WithPrefix("another").WithPrefix("another")
	l.Info("Test message")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "test another", lines[0]["prefix"])
}

func TestJSONLoggerStripsColour(t *testing.T) {
	var buf bytes.Buffer
	NewJSONLoggerWithSink(&buf, LevelTrace).Info("\x1b[31mred\x1b[0m")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "red", lines[0]["msg"])
}

func TestJSONLoggerStack(t *testing.T) {
	var buf bytes.Buffer
	recorder := NewTestLogger()
	l := NewJSONLoggerWithSink(&buf, LevelWarn).Stack(recorder)
	l.Info("only recorded")
	l.Error("both")

	assert.Len(t, decodeLines(t, &buf), 1)
	assert.Equal(t, 1, recorder.Count("INFO"))
	assert.Equal(t, 1, recorder.Count("ERROR"))
}

func TestJSONLoggerLevels(t *testing.T) {
	l := NewJSONLogger(LevelWarn)
	assert.False(t, l.IsLevelEnabled(LevelInfo))
	assert.True(t, l.IsLevelEnabled(LevelError))
}
