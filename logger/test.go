package logger

import (
	"context"
	"fmt"
	"os"
	"sync"
)

type TestLogEntry struct {
	Severity  string
	Message   string
	Arguments []interface{}
	Metadata  map[string]interface{}
}

// Formatted returns the message with its arguments applied.
func (e TestLogEntry) Formatted() string {
	if len(e.Arguments) == 0 {
		return e.Message
	}
	return fmt.Sprintf(e.Message, e.Arguments...)
}

type testLogStore struct {
	mu   sync.Mutex
	logs []TestLogEntry
}

// TestLogger records every entry in memory. Loggers derived through With,
// WithPrefix or Stack share the same record, so assertions can be made on
// the root logger handed to the code under test.
type TestLogger struct {
	metadata map[string]interface{}
	store    *testLogStore
	child    Logger
}

var _ Logger = (*TestLogger)(nil)

func (c *TestLogger) WithContext(ctx context.Context) Logger {
	return c
}

// WithPrefix will return a new logger with a prefix prepended to the message
func (c *TestLogger) WithPrefix(prefix string) Logger {
	return c
}

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	kv := make(map[string]interface{}, len(c.metadata)+len(metadata))
	for k, v := range c.metadata {
		kv[k] = v
	}
	for k, v := range metadata {
		kv[k] = v
	}
	child := c.child
	if child != nil {
		child = child.With(metadata)
	}
	return &TestLogger{metadata: kv, store: c.store, child: child}
}

func (c *TestLogger) Log(level string, msg string, args ...interface{}) {
	c.store.mu.Lock()
	c.store.logs = append(c.store.logs, TestLogEntry{level, msg, args, c.metadata})
	c.store.mu.Unlock()
}

// Entries returns a copy of everything logged so far.
func (c *TestLogger) Entries() []TestLogEntry {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	out := make([]TestLogEntry, len(c.store.logs))
	copy(out, c.store.logs)
	return out
}

// Count returns how many entries were logged with the given severity.
func (c *TestLogger) Count(severity string) int {
	var n int
	for _, e := range c.Entries() {
		if e.Severity == severity {
			n++
		}
	}
	return n
}

func (c *TestLogger) Trace(msg string, args ...interface{}) { c.emit(LevelTrace, msg, args...) }

func (c *TestLogger) Debug(msg string, args ...interface{}) { c.emit(LevelDebug, msg, args...) }

func (c *TestLogger) Info(msg string, args ...interface{}) { c.emit(LevelInfo, msg, args...) }

func (c *TestLogger) Warn(msg string, args ...interface{}) { c.emit(LevelWarn, msg, args...) }

func (c *TestLogger) Error(msg string, args ...interface{}) { c.emit(LevelError, msg, args...) }

func (c *TestLogger) Fatal(msg string, args ...interface{}) {
	c.Log("FATAL", msg, args...)
	forward(c.child, LevelError, msg, args...)
	os.Exit(1)
}

func (c *TestLogger) emit(level LogLevel, msg string, args ...interface{}) {
	c.Log(severities[level], msg, args...)
	forward(c.child, level, msg, args...)
}

func (c *TestLogger) Stack(next Logger) Logger {
	return &TestLogger{metadata: c.metadata, store: c.store, child: next}
}

func (c *TestLogger) IsLevelEnabled(level LogLevel) bool {
	return true
}

// NewTestLogger returns a new Logger instance useful for testing
func NewTestLogger() *TestLogger {
	return &TestLogger{store: &testLogStore{}}
}
