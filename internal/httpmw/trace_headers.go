package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Default response headers naming the trace and span that the request's
// log entries carry as trace_id and span_id.
const (
	TraceIDHeader = "X-Trace-Id"
	SpanIDHeader  = "X-Span-Id"
)

// TraceResponseHeaders echoes the active span context to the client so a
// failed request can be matched with its server-side log entries. Empty
// names fall back to TraceIDHeader and SpanIDHeader.
func TraceResponseHeaders(traceHeader, spanHeader string) func(http.Handler) http.Handler {
	if traceHeader == "" {
		traceHeader = TraceIDHeader
	}
	if spanHeader == "" {
		spanHeader = SpanIDHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				h := w.Header()
				h.Set(traceHeader, sc.TraceID().String())
				h.Set(spanHeader, sc.SpanID().String())
			}
			next.ServeHTTP(w, r)
		})
	}
}
