package logging

import "testing"

type countingLogger struct{ n int }

func (c *countingLogger) Debug(string, Fields) { c.n++ }
func (c *countingLogger) Info(string, Fields)  { c.n++ }
func (c *countingLogger) Warn(string, Fields)  { c.n++ }

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(NopLogger); !ok {
		t.Fatalf("nil logger should become NopLogger")
	}
	var typed *countingLogger
	l := OrNop(typed)
	if _, ok := l.(NopLogger); !ok {
		t.Fatalf("typed nil logger should become NopLogger, got %T", l)
	}
	l.Info("safe", nil)

	c := &countingLogger{}
	OrNop(c).Warn("kept", nil)
	if c.n != 1 {
		t.Fatalf("non-nil logger should be returned as is")
	}
}
