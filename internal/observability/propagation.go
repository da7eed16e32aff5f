package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// HookTrace is the W3C trace context embedded in plugin hook payloads, so
// a plugin invocation can be correlated with the gateway request that
// triggered it even though the plugin runs in its own sandbox.
type HookTrace struct {
	TraceParent string `json:"traceparent,omitempty"`
	TraceState  string `json:"tracestate,omitempty"`
}

// HookTraceFromContext captures the current span's context for embedding
// in a hook payload. Zero-valued when tracing is off or no span is active.
func HookTraceFromContext(ctx context.Context) HookTrace {
	if !Enabled() {
		return HookTrace{}
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return HookTrace{
		TraceParent: carrier.Get("traceparent"),
		TraceState:  carrier.Get("tracestate"),
	}
}

// Context restores the hook trace onto ctx, linking any span started under
// the returned context to the originating request.
func (t HookTrace) Context(ctx context.Context) context.Context {
	if t.TraceParent == "" {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier{
		"traceparent": t.TraceParent,
		"tracestate":  t.TraceState,
	})
}

// TraceID returns the current trace id for log correlation, empty when no
// trace is active.
func TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// SpanID returns the current span id for log correlation, empty when no
// span is active.
func SpanID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasSpanID() {
		return ""
	}
	return sc.SpanID().String()
}
