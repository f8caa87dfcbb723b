package telemetry

import (
	"context"
	"sync"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// maxPendingTraces bounds the number of traces whose child spans wait for their root span.
const maxPendingTraces = 1024

type slowTickSpanExporter struct {
	wrappedExporter sdktrace.SpanExporter

	threshold time.Duration

	mu      sync.Mutex
	pending map[trace.TraceID][]sdktrace.ReadOnlySpan
	order   []trace.TraceID
}

var _ sdktrace.SpanExporter = (*slowTickSpanExporter)(nil)

// NewSlowTickSpanExporter creates a SpanExporter that forwards a trace to exporter only when its
// root span, normally one whole tick, lasted at least threshold. Every span of a forwarded trace
// is exported, so the per-query poll spans show where the tick spent its time.
//
// Child spans end before their root and may be flushed in an earlier batch, so they are held
// per trace until the root span arrives. At most maxPendingTraces traces are held; the oldest
// is dropped beyond that.
//
// If the exporter is nil, the span exporter will do nothing.
func NewSlowTickSpanExporter(exporter sdktrace.SpanExporter, threshold time.Duration) sdktrace.SpanExporter {
	return &slowTickSpanExporter{
		wrappedExporter: exporter,
		threshold:       threshold,
		pending:         make(map[trace.TraceID][]sdktrace.ReadOnlySpan),
	}
}

func (s *slowTickSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if s.wrappedExporter == nil {
		return nil
	}

	s.mu.Lock()
	var roots []sdktrace.ReadOnlySpan
	for _, span := range spans {
		if !span.Parent().IsValid() {
			roots = append(roots, span)
			continue
		}
		s.hold(span)
	}

	var slowSpans []sdktrace.ReadOnlySpan
	for _, root := range roots {
		traceID := root.SpanContext().TraceID()
		children := s.pending[traceID]
		s.forget(traceID)

		if root.EndTime().Sub(root.StartTime()) >= s.threshold {
			slowSpans = append(slowSpans, children...)
			slowSpans = append(slowSpans, root)
		}
	}
	s.mu.Unlock()

	if len(slowSpans) == 0 {
		return nil
	}
	return s.wrappedExporter.ExportSpans(ctx, slowSpans)
}

func (s *slowTickSpanExporter) hold(span sdktrace.ReadOnlySpan) {
	traceID := span.SpanContext().TraceID()
	if _, ok := s.pending[traceID]; !ok {
		if len(s.order) == maxPendingTraces {
			delete(s.pending, s.order[0])
			s.order = s.order[1:]
		}
		s.order = append(s.order, traceID)
	}
	s.pending[traceID] = append(s.pending[traceID], span)
}

func (s *slowTickSpanExporter) forget(traceID trace.TraceID) {
	if _, ok := s.pending[traceID]; !ok {
		return
	}
	delete(s.pending, traceID)
	for i, id := range s.order {
		if id == traceID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *slowTickSpanExporter) Shutdown(ctx context.Context) error {
	if s.wrappedExporter == nil {
		return nil
	}

	s.mu.Lock()
	s.pending = make(map[trace.TraceID][]sdktrace.ReadOnlySpan)
	s.order = nil
	s.mu.Unlock()

	return s.wrappedExporter.Shutdown(ctx)
}
