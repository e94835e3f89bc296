package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

// recorder is a slog.Handler that keeps the records it is handed along with
// the attributes bound through With/Module.
type recorder struct {
	level slog.Level
	attrs []slog.Attr
	out   *[]slog.Record
}

func newRecorder(level slog.Level) (*recorder, *[]slog.Record) {
	var recs []slog.Record
	return &recorder{level: level, out: &recs}, &recs
}

func (r *recorder) Enabled(_ context.Context, l slog.Level) bool { return l >= r.level }

func (r *recorder) Handle(_ context.Context, rec slog.Record) error {
	rec = rec.Clone()
	rec.AddAttrs(r.attrs...)
	*r.out = append(*r.out, rec)
	return nil
}

func (r *recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recorder{level: r.level, attrs: append(append([]slog.Attr{}, r.attrs...), attrs...), out: r.out}
}

func (r *recorder) WithGroup(string) slog.Handler { return r }

func attr(rec slog.Record, key string) (string, bool) {
	var (
		val   string
		found bool
	)
	rec.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			val, found = a.Value.String(), true
			return false
		}
		return true
	})
	return val, found
}

func TestNewTerminalFormat(t *testing.T) {
	var buf bytes.Buffer
	l := newTerminal(&buf, slog.LevelInfo)
	l.Module("engine").Info("Execution finished", "cycles", 66)
	l.Debug("dropped")

	out := buf.String()
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("got %q, want one line", out)
	}
	for _, want := range []string{"INFO", "Execution finished", "module=engine", "cycles=66"} {
		if !strings.Contains(out, want) {
			t.Errorf("terminal output %q lacks %q", out, want)
		}
	}
}

func TestModuleFollowsSetDefault(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	h, recs := newRecorder(slog.LevelDebug)
	SetDefault(NewWithHandler(h))
	SetDefault(nil)
	if Default() == prev {
		t.Fatal("SetDefault(nil) replaced the default")
	}

	Module("prover").Debug("Proved base segments", "segments", 4)
	Warn("Failed to write metrics")
	if len(*recs) != 2 {
		t.Fatalf("got %d records, want 2", len(*recs))
	}
	if m, _ := attr((*recs)[0], "module"); m != "prover" {
		t.Fatalf("module = %q, want prover", m)
	}
	if n, _ := attr((*recs)[0], "segments"); n != "4" {
		t.Fatalf("segments = %q, want 4", n)
	}
	if _, ok := attr((*recs)[1], "module"); ok {
		t.Fatal("package-level Warn carries a module")
	}
	if (*recs)[1].Level != slog.LevelWarn {
		t.Fatalf("Warn logged at %v", (*recs)[1].Level)
	}
}

func TestTrace(t *testing.T) {
	h, recs := newRecorder(LevelTrace)
	l := NewWithHandler(h).Module("prover")
	l.Trace("Proved segment", "index", 2)
	if len(*recs) != 1 || (*recs)[0].Level != LevelTrace {
		t.Fatalf("records: %+v", *recs)
	}

	h, recs = newRecorder(slog.LevelDebug)
	NewWithHandler(h).Trace("hidden")
	if len(*recs) != 0 {
		t.Fatalf("trace emitted at debug: %+v", *recs)
	}
}

func TestEnabled(t *testing.T) {
	tests := []struct {
		handler slog.Level
		check   slog.Level
		want    bool
	}{
		{slog.LevelInfo, slog.LevelDebug, false},
		{slog.LevelInfo, slog.LevelInfo, true},
		{slog.LevelDebug, LevelTrace, false},
		{LevelTrace, LevelTrace, true},
		{LevelSilent, slog.LevelError, false},
	}
	for _, tt := range tests {
		h, _ := newRecorder(tt.handler)
		if got := NewWithHandler(h).Enabled(tt.check); got != tt.want {
			t.Errorf("handler %v: Enabled(%v) = %v, want %v", tt.handler, tt.check, got, tt.want)
		}
	}
	if !newTerminal(&bytes.Buffer{}, slog.LevelWarn).Enabled(slog.LevelError) {
		t.Error("terminal logger at warn rejects error")
	}
}
