package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan opens an internal span for a unit of runtime work (command
// execution, plugin invocation).
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// SetSpanError records err on span and marks it failed.
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Span attribute keys for the runtime's own domain.
var (
	AttrCommandKind = attribute.Key("logline.command.kind")
	AttrPluginID    = attribute.Key("logline.plugin.id")
	AttrHook        = attribute.Key("logline.plugin.hook")
	AttrChannel     = attribute.Key("logline.channel")
)
