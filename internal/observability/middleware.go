package observability

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMiddleware traces one gateway request as a server span named after
// the route (gateway.dsl, gateway.stream, ...), continuing any trace
// context carried on the incoming headers. Stream-relevant request fields
// (channel filter, Last-Event-ID) are recorded as span attributes so an
// SSE reconnect can be correlated with its original subscription.
func HTTPMiddleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := Tracer().Start(ctx, "gateway."+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(r.Method),
				attribute.String("logline.gateway.route", route),
			),
		)
		defer span.End()

		if channels := r.URL.Query()["channel"]; len(channels) > 0 {
			span.SetAttributes(AttrChannel.StringSlice(channels))
		}
		if last := r.Header.Get("Last-Event-ID"); last != "" {
			span.SetAttributes(attribute.String("logline.stream.last_event_id", last))
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		span.SetAttributes(semconv.HTTPStatusCode(sw.status))
		if sw.status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(sw.status))
		}
	})
}

// statusWriter captures the response status for the span. It must keep
// http.Flusher visible: the SSE stream handler type-asserts its writer to
// a Flusher, and wrapping must not hide that.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
