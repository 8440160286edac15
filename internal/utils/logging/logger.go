package logging

import "reflect"

// Fields represents structured context for a log entry.
// Keys should be short, lowerCamelCase; values must be JSON-serializable.
type Fields map[string]any

// Logger is the leveled logger shared by the handler, the SDK adapters and the
// orchestrator. Callers pass a message and optional structured context.
type Logger interface {
	Debug(msg string, ctx Fields)
	Info(msg string, ctx Fields)
	Warn(msg string, ctx Fields)
}

// NopLogger discards all logs.
type NopLogger struct{}

// Debug discards the log entry.
func (NopLogger) Debug(string, Fields) {}

// Info discards the log entry.
func (NopLogger) Info(string, Fields) {}

// Warn discards the log entry.
func (NopLogger) Warn(string, Fields) {}

// OrNop returns l, or a NopLogger when l is nil or wraps a nil pointer.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	if v := reflect.ValueOf(l); v.Kind() == reflect.Pointer && v.IsNil() {
		return NopLogger{}
	}
	return l
}
