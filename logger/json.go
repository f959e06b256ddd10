package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

var severities = map[LogLevel]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

// jsonEntry is one line written by the JSON logger.
type jsonEntry struct {
	Time    time.Time              `json:"time"`
	Level   string                 `json:"level"`
	Message string                 `json:"msg"`
	Prefix  string                 `json:"prefix,omitempty"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// jsonOutput is shared by a logger and everything derived from it so lines
// from different goroutines never interleave.
type jsonOutput struct {
	mu    sync.Mutex
	w     io.Writer
	level LogLevel
}

type jsonLogger struct {
	out      *jsonOutput
	prefixes []string
	fields   map[string]interface{}
	now      func() time.Time
	child    Logger
}

var _ SinkLogger = (*jsonLogger)(nil)

func (c *jsonLogger) clone() *jsonLogger {
	clone := *c
	clone.prefixes = slices.Clone(c.prefixes)
	clone.fields = maps.Clone(c.fields)
	return &clone
}

func (c *jsonLogger) WithContext(ctx context.Context) Logger {
	clone := c.clone()
	if clone.child != nil {
		clone.child = clone.child.WithContext(ctx)
	}
	return clone
}

// SetSink redirects output to sink, filtered at level.
func (c *jsonLogger) SetSink(sink Sink, level LogLevel) {
	c.out.mu.Lock()
	c.out.w = sink
	c.out.level = level
	c.out.mu.Unlock()
	if child, ok := c.child.(SinkLogger); ok {
		child.SetSink(sink, level)
	}
}

func (c *jsonLogger) WithPrefix(prefix string) Logger {
	clone := c.clone()
	prefix = strings.Trim(prefix, "[]")
	if !slices.Contains(clone.prefixes, prefix) {
		clone.prefixes = append(clone.prefixes, prefix)
	}
	if clone.child != nil {
		clone.child = clone.child.WithPrefix(prefix)
	}
	return clone
}

func (c *jsonLogger) With(fields map[string]interface{}) Logger {
	clone := c.clone()
	if clone.fields == nil {
		clone.fields = make(map[string]interface{}, len(fields))
	}
	maps.Copy(clone.fields, fields)
	if clone.child != nil {
		clone.child = clone.child.With(fields)
	}
	return clone
}

func (c *jsonLogger) write(level LogLevel, msg string, args ...interface{}) {
	if !c.IsLevelEnabled(level) {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	line, err := json.Marshal(jsonEntry{
		Time:    c.now().UTC(),
		Level:   severities[level],
		Message: ansiColorStripper.ReplaceAllString(msg, ""),
		Prefix:  strings.Join(c.prefixes, " "),
		Fields:  c.fields,
	})
	if err != nil {
		line, _ = json.Marshal(jsonEntry{Time: c.now().UTC(), Level: severities[level], Message: msg})
	}
	c.out.mu.Lock()
	defer c.out.mu.Unlock()
	_, _ = c.out.w.Write(append(line, '\n'))
}

func (c *jsonLogger) Trace(msg string, args ...interface{}) { c.emit(LevelTrace, msg, args...) }

func (c *jsonLogger) Debug(msg string, args ...interface{}) { c.emit(LevelDebug, msg, args...) }

func (c *jsonLogger) Info(msg string, args ...interface{}) { c.emit(LevelInfo, msg, args...) }

func (c *jsonLogger) Warn(msg string, args ...interface{}) { c.emit(LevelWarn, msg, args...) }

func (c *jsonLogger) Error(msg string, args ...interface{}) { c.emit(LevelError, msg, args...) }

// Fatal logs at error level and exits.
func (c *jsonLogger) Fatal(msg string, args ...interface{}) {
	c.emit(LevelError, msg, args...)
	os.Exit(1)
}

func (c *jsonLogger) emit(level LogLevel, msg string, args ...interface{}) {
	c.write(level, msg, args...)
	forward(c.child, level, msg, args...)
}

func (c *jsonLogger) IsLevelEnabled(level LogLevel) bool {
	c.out.mu.Lock()
	defer c.out.mu.Unlock()
	return level >= c.out.level
}

func (c *jsonLogger) Stack(next Logger) Logger {
	clone := c.clone()
	clone.child = next
	return clone
}

// NewJSONLogger returns a Logger writing one JSON object per line to stdout.
func NewJSONLogger(levels ...LogLevel) Logger {
	level := GetLevelFromEnv()
	if len(levels) > 0 {
		level = levels[0]
	}
	return NewJSONLoggerWithSink(os.Stdout, level)
}

// NewJSONLoggerWithSink returns a JSON Logger writing to sink.
func NewJSONLoggerWithSink(sink Sink, level LogLevel) SinkLogger {
	return &jsonLogger{out: &jsonOutput{w: sink, level: level}, now: time.Now}
}
