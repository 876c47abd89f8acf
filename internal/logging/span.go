package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span times one stage of a request. Spans share the request's trace id, and
// the first span started on a context creates it.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
	attrs  []any
	failed bool
}

// StartSpan derives a child span from ctx. The returned context carries a
// logger annotated with trace_id, span_id and span_name.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := FromContext(ctx)

	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
		ctx = WithTraceID(ctx, traceID)
		logger = logger.With(slog.String("trace_id", traceID))
	}

	spanID := uuid.NewString()
	logger = logger.With(slog.String("span_id", spanID), slog.String("span_name", name))
	if parent := SpanIDFromContext(ctx); parent != "" {
		logger = logger.With(slog.String("parent_span_id", parent))
	}

	ctx = WithSpanID(WithLogger(ctx, logger), spanID)
	return ctx, &Span{name: name, logger: logger, start: time.Now()}
}

// Annotate adds key/value pairs to the completion entry.
func (s *Span) Annotate(args ...any) {
	if s == nil {
		return
	}
	s.attrs = append(s.attrs, args...)
}

// Fail marks the span as failed; End then logs at warn level.
func (s *Span) Fail(err error) {
	if s == nil || err == nil {
		return
	}
	s.failed = true
	s.attrs = append(s.attrs, "error", err)
}

// End emits the completion entry with the span duration.
func (s *Span) End() {
	if s == nil {
		return
	}
	args := append([]any{slog.Duration("duration", time.Since(s.start))}, s.attrs...)
	if s.failed {
		s.logger.Warn("span failed", args...)
		return
	}
	s.logger.Info("span completed", args...)
}
