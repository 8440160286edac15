package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

type hclogLogger struct {
	l hclog.Logger
}

// New returns a JSON hclog-backed Logger writing to w (stderr when nil).
func New(name, level string, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	return NewHclog(hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level),
		Output:     w,
		JSONFormat: true,
	}))
}

// NewHclog adapts an existing hclog.Logger.
func NewHclog(l hclog.Logger) Logger { return hclogLogger{l: l} }

func (h hclogLogger) Debug(msg string, ctx Fields) { h.l.Debug(msg, args(ctx)...) }
func (h hclogLogger) Info(msg string, ctx Fields)  { h.l.Info(msg, args(ctx)...) }
func (h hclogLogger) Warn(msg string, ctx Fields)  { h.l.Warn(msg, args(ctx)...) }

func args(ctx Fields) []any {
	out := make([]any, 0, len(ctx)*2)
	for k, v := range ctx {
		out = append(out, k, v)
	}
	return out
}
