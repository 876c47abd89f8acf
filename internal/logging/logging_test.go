package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept", "videoId", "v1")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry got %d", len(entries))
	}
	if entries[0]["msg"] != "kept" || entries[0]["service"] != "raibee" || entries[0]["source"] == nil {
		t.Fatalf("unexpected entry %v", entries[0])
	}

	if _, err := New(&buf, "verbose"); err == nil {
		t.Fatal("expected unknown level to be rejected")
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatal("expected default logger")
	}

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Fatal("expected stored logger")
	}
	if got := RequestIDFromContext(WithRequestID(ctx, "req-1")); got != "req-1" {
		t.Fatalf("unexpected request id %q", got)
	}
}

func TestSpansShareTrace(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := WithLogger(context.Background(), base)

	ctx, parent := StartSpan(ctx, "stream")
	traceID := TraceIDFromContext(ctx)
	parentID := SpanIDFromContext(ctx)

	childCtx, child := StartSpan(ctx, "decrypt")
	if TraceIDFromContext(childCtx) != traceID {
		t.Fatal("child span must reuse the trace id")
	}
	child.Fail(errors.New("boom"))
	child.End()
	parent.Annotate("bytes", 10)
	parent.End()

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries got %d", len(entries))
	}
	if entries[0]["level"] != "WARN" || entries[0]["parent_span_id"] != parentID || entries[0]["error"] != "boom" {
		t.Fatalf("unexpected child entry %v", entries[0])
	}
	if entries[1]["span_name"] != "stream" || entries[1]["bytes"] != float64(10) || entries[1]["trace_id"] != traceID {
		t.Fatalf("unexpected parent entry %v", entries[1])
	}
}
