package log

import (
	"strings"
	"testing"
	"time"
)

func collector() (Output, func() []string) {
	var lines []string
	out := FuncOutput(func(_ time.Time, _ bool, msg string) {
		lines = append(lines, msg)
	}, func() error { return nil })
	return out, func() []string { return lines }
}

func TestLogger_MsgIncludesNameAndFields(t *testing.T) {
	out, lines := collector()
	l := Logger{Out: out, Name: "resolver"}
	l.Msg("resolved", "domain", "example.com")

	got := lines()
	if len(got) != 1 {
		t.Fatalf("got %d lines", len(got))
	}
	if !strings.HasPrefix(got[0], "resolver: resolved\t") {
		t.Fatalf("line = %q", got[0])
	}
	if !strings.Contains(got[0], `"domain":"example.com"`) {
		t.Fatalf("line = %q", got[0])
	}
}

func TestLogger_DebugMsgSuppressedByDefault(t *testing.T) {
	out, lines := collector()
	l := Logger{Out: out}
	l.DebugMsg("hidden")
	if len(lines()) != 0 {
		t.Fatalf("expected no output, got %v", lines())
	}

	l.Debug = true
	l.DebugMsg("shown")
	if len(lines()) != 1 {
		t.Fatalf("expected one line, got %v", lines())
	}
}

type fieldedErr struct{ f map[string]interface{} }

func (e fieldedErr) Error() string                    { return "boom" }
func (e fieldedErr) Fields() map[string]interface{}   { return e.f }

func TestLogger_ErrorMergesFielderFields(t *testing.T) {
	out, lines := collector()
	l := Logger{Out: out}
	l.Error("failed", fieldedErr{f: map[string]interface{}{"status": "fetch_error"}})

	got := lines()[0]
	if !strings.Contains(got, `"status":"fetch_error"`) {
		t.Fatalf("line = %q", got)
	}
	if !strings.Contains(got, `"reason":"boom"`) {
		t.Fatalf("line = %q", got)
	}
}

func TestLogger_ErrorNilIsNoop(t *testing.T) {
	out, lines := collector()
	l := Logger{Out: out}
	l.Error("failed", nil)
	if len(lines()) != 0 {
		t.Fatalf("expected no output for nil error, got %v", lines())
	}
}

func TestLogger_WithMergesFields(t *testing.T) {
	out, lines := collector()
	l := Logger{Out: out}.With(map[string]interface{}{"request_id": "abc"})
	l.Msg("hello")
	if !strings.Contains(lines()[0], `"request_id":"abc"`) {
		t.Fatalf("line = %q", lines()[0])
	}
}

func TestLogger_ZapProducesWorkingLogger(t *testing.T) {
	out, lines := collector()
	l := Logger{Out: out}
	zl := l.Zap()
	zl.Info("from zap")
	if len(lines()) != 1 {
		t.Fatalf("expected one line routed through zap core, got %v", lines())
	}
}
