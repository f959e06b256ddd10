package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleLoggerSink(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(LevelNone)
	l.SetSink(&buf, LevelInfo)

	l.WithPrefix("[cache]").With(map[string]interface{}{"k": "v"}).Info("hello %d", 1)
	l.Debug("hidden")

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "[INFO ]")
	assert.Contains(t, out, "[cache] hello 1")
	assert.Contains(t, out, `{"k":"v"}`)
	assert.NotContains(t, out, "\x1b[")
}

func TestConsoleLoggerWithDoesNotMutateParent(t *testing.T) {
	parent := NewConsoleLogger(LevelInfo).(*consoleLogger)
	child := parent.With(map[string]interface{}{"a": 1}).WithPrefix("p").(*consoleLogger)

	assert.Empty(t, parent.metadata)
	assert.Empty(t, parent.prefixes)
	assert.Equal(t, 1, child.metadata["a"])
	assert.Equal(t, []string{"p"}, child.prefixes)
}

func TestConsoleLoggerStack(t *testing.T) {
	next := NewTestLogger()
	l := NewConsoleLogger(LevelNone).Stack(next)
	l.Error("boom")
	assert.Equal(t, 1, next.Count("ERROR"))
	assert.False(t, l.IsLevelEnabled(LevelError))
}
