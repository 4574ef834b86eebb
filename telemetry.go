package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// logExporter writes finished spans to the debug log. There is no collector
// on a desktop install, so spans only matter when DEBUG is set.
type logExporter struct {
	logger *log.Logger
}

func (e logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	if !e.logger.IsLevelEnabled(log.DebugLevel) {
		return nil
	}
	for _, s := range spans {
		fields := log.Fields{
			"span":        s.Name(),
			"trace_id":    s.SpanContext().TraceID().String(),
			"duration_ms": float64(s.EndTime().Sub(s.StartTime()).Microseconds()) / 1000,
			"status":      s.Status().Code.String(),
		}
		for _, kv := range s.Attributes() {
			fields[string(kv.Key)] = kv.Value.Emit()
		}
		e.logger.WithFields(fields).Debug("trace.span")
	}
	return nil
}

func (logExporter) Shutdown(context.Context) error { return nil }

func newTracerProvider(logger *log.Logger) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(logExporter{logger: logger}),
	)
}
