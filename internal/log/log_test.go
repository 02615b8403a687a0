package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/themehub/internal/xerrors"
)

func newBufLogger(t *testing.T, opts Options) (*slogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	opts.Writer = &buf
	opts.JSON = true
	l, err := newSlog(opts)
	if err != nil {
		t.Fatalf("newSlog: %v", err)
	}
	return l.(*slogLogger), &buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("parse log line: %v\n%s", err, buf.String())
	}
	return m
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" INFO ", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLogger_BaseAttrsAndKV(t *testing.T) {
	l, buf := newBufLogger(t, Options{App: "themehub", Version: "1.2.3"})
	l.With("component", "themes").Info(context.Background(), "swap done", "website", "site-a", 42, "dropped")

	m := lastRecord(t, buf)
	if m["msg"] != "swap done" || m["app"] != "themehub" || m["version"] != "1.2.3" {
		t.Fatalf("record = %v", m)
	}
	if m["component"] != "themes" || m["website"] != "site-a" {
		t.Fatalf("missing attrs: %v", m)
	}
	src, _ := m["source"].(map[string]any)
	if f, _ := src["function"].(string); !strings.HasSuffix(f, "TestLogger_BaseAttrsAndKV") {
		t.Fatalf("source should point at caller, got %v", src)
	}
}

func TestLogger_WithDoesNotLeak(t *testing.T) {
	l, buf := newBufLogger(t, Options{App: "a"})
	_ = l.With("k", "v")
	l.Info(context.Background(), "plain")
	if _, ok := lastRecord(t, buf)["k"]; ok {
		t.Fatal("With must not modify the parent logger")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufLogger(t, Options{App: "a", Level: slog.LevelWarn})
	l.Debug(context.Background(), "d")
	l.Info(context.Background(), "i")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %s", buf.String())
	}
	l.Warn(context.Background(), "w")
	if lastRecord(t, buf)["msg"] != "w" {
		t.Fatal("warn should be emitted")
	}
}

func TestLogger_ErrorEnrichment(t *testing.T) {
	l, buf := newBufLogger(t, Options{App: "a", IncludeErrorLinks: true})
	root := errors.New("connection reset")
	err := xerrors.Wrap(fmt.Errorf("copy object: %w", root), "swap theme")

	l.Error(context.Background(), err, "swap failed", "website", "site-a")

	m := lastRecord(t, buf)
	if m["err"] != "swap theme: copy object: connection reset" {
		t.Fatalf("err = %v", m["err"])
	}
	if m["cause_type"] != "*errors.errorString" {
		t.Fatalf("cause_type = %v", m["cause_type"])
	}
	chain, _ := m["error_chain"].([]any)
	if len(chain) != 3 {
		t.Fatalf("error_chain = %v", m["error_chain"])
	}
	links, _ := m["error_links"].([]any)
	if len(links) == 0 {
		t.Fatal("expected error_links")
	}
	first := links[0].(map[string]any)
	if f, _ := first["func"].(string); !strings.HasSuffix(f, "TestLogger_ErrorEnrichment") {
		t.Fatalf("first link func = %v", first["func"])
	}
	if s, _ := m["stack"].(string); s == "" {
		t.Fatal("error level should carry a stack")
	}
}

func TestLogger_ErrorStackPrefersCapturedStack(t *testing.T) {
	l, buf := newBufLogger(t, Options{App: "a"})
	// strings.Map is the first frame outside this package, so a stack
	// taken from the error starts there while one taken at log time
	// would not contain it at all.
	var err error
	_ = strings.Map(func(r rune) rune {
		if err == nil {
			pcs := make([]uintptr, 32)
			err = stackedError{pcs: pcs[:runtime.Callers(1, pcs)]}
		}
		return r
	}, "x")
	l.Error(context.Background(), err, "failed")

	stack, _ := lastRecord(t, buf)["stack"].(string)
	if !strings.HasPrefix(stack, "strings.Map") {
		t.Fatalf("stack should come from the error, got:\n%s", stack)
	}
}

type stackedError struct{ pcs []uintptr }

func (e stackedError) Error() string       { return "captured" }
func (e stackedError) StackPCs() []uintptr { return e.pcs }

func TestLogger_NoLinksByDefault(t *testing.T) {
	l, buf := newBufLogger(t, Options{App: "a"})
	l.Error(context.Background(), errors.New("x"), "m")
	if _, ok := lastRecord(t, buf)["error_links"]; ok {
		t.Fatal("error_links should be opt-in")
	}
}

func TestLogger_NilErrorStillLogs(t *testing.T) {
	l, buf := newBufLogger(t, Options{App: "a"})
	l.Error(context.Background(), nil, "odd")
	m := lastRecord(t, buf)
	if m["msg"] != "odd" {
		t.Fatalf("record = %v", m)
	}
	if _, ok := m["err"]; ok {
		t.Fatal("nil error should not add err attr")
	}
}

func TestTraceHandler_AddsIDs(t *testing.T) {
	l, buf := newBufLogger(t, Options{App: "a"})
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	l.Info(ctx, "traced")

	m := lastRecord(t, buf)
	if m["trace_id"] != sc.TraceID().String() || m["span_id"] != sc.SpanID().String() {
		t.Fatalf("trace ids missing: %v", m)
	}
}

func TestErrorChain_IncludesJoined(t *testing.T) {
	err := errors.Join(errors.New("a"), errors.New("b"))
	got := errorChain(err)
	if len(got) != 3 || got[1] != "a" || got[2] != "b" {
		t.Fatalf("errorChain = %q", got)
	}
}

func TestContext_RoundTrip(t *testing.T) {
	if _, ok := FromContext(context.Background()).(nop); !ok {
		t.Fatal("empty context should yield Nop")
	}
	l, _ := newBufLogger(t, Options{App: "a"})
	ctx := WithContext(context.Background(), l)
	if FromContext(ctx) != Logger(l) {
		t.Fatal("FromContext should return stored logger")
	}
}

func TestNop_Safe(t *testing.T) {
	n := Nop().With("a", 1, "odd")
	n.Debug(context.Background(), "x")
	n.Error(context.Background(), nil, "x")
	if err := n.Sync(); err != nil {
		t.Fatal(err)
	}
}
