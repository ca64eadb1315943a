package log

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Component: ComponentLedger, Output: &buf})
	l.Info("Expense posted", FieldGroupRef, "g-1")

	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "group_ref=g-1") {
		t.Errorf("unexpected output: %s", out)
	}
	if l.WithComponent(ComponentOutbox).Component() != ComponentOutbox {
		t.Error("WithComponent did not change the component")
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != ComponentApp {
		t.Errorf("FromContext() = %+v", l)
	}
	l := New(Config{Component: ComponentCLI, Output: &bytes.Buffer{}})
	if got := FromContext(NewContext(context.Background(), l)); got != l {
		t.Error("FromContext did not return the stored logger")
	}
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Output: &buf})
	var seen *Logger
	h := Middleware(base, func(r *http.Request) string { return "req-42" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = FromContext(r.Context())
			w.WriteHeader(http.StatusTeapot)
		}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/report", nil))

	if seen == nil || seen.Component() != ComponentHTTP {
		t.Fatalf("handler logger = %+v", seen)
	}
	out := buf.String()
	for _, want := range []string{"level=WARN", "status_code=418", "request_id=req-42", "path=/api/report"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}
