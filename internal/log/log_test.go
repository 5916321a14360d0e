package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func bufferLogger(component string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{
		Component: component,
		Handler:   slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}), &buf
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithOwner("u1").
		WithTransaction("t1", "expense", "Food", "12.50").
		WithError(nil).
		WithOperation(OpRecord)

	if _, ok := f[FieldError]; ok {
		t.Error("nil error must not add an error field")
	}
	if f[FieldOwner] != "u1" || f[FieldTransactionID] != "t1" || f[FieldAmount] != "12.50" {
		t.Errorf("unexpected fields %v", f)
	}
	if got := len(f.ToSlice()); got != 2*len(f) {
		t.Errorf("ToSlice length = %d, want %d", got, 2*len(f))
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	l, buf := bufferLogger(ComponentLedger)
	l.InfoContext(context.Background(), "Transaction recorded", FieldOwner, "u1")

	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "owner=u1") {
		t.Errorf("unexpected log line %q", out)
	}
}

func TestContextRoundTrip(t *testing.T) {
	l, buf := bufferLogger(ComponentHTTP)
	handler := Middleware(l)(ComponentMiddleware(ComponentStats)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := FromContext(r.Context())
		if got.Component() != ComponentStats {
			t.Errorf("component = %q, want %q", got.Component(), ComponentStats)
		}
		got.Info("inside handler")
	})))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "inside handler") {
		t.Errorf("handler log not written to context logger: %q", buf.String())
	}
	if FromContext(context.Background()).Component() != "unknown" {
		t.Error("empty context must yield the default logger")
	}
}

func TestStructuredLogger(t *testing.T) {
	l, buf := bufferLogger(ComponentHTTP)
	sl := NewStructuredLogger(l)
	r := httptest.NewRequest(http.MethodPost, "/api/transactions?x=1", nil)

	sl.LogHTTPEnd(context.Background(), r, http.StatusServiceUnavailable, 12, "10.0.0.1")
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "status_code=503") {
		t.Errorf("unexpected HTTP end log %q", buf.String())
	}

	buf.Reset()
	sl.LogError(context.Background(), "Invariant violated", errors.New("bucket short"), ErrorTypeConsistency, OpRemove, nil)
	out := buf.String()
	if !strings.Contains(out, "error_type=consistency_error") || !strings.Contains(out, `error="bucket short"`) {
		t.Errorf("unexpected error log %q", out)
	}
}
