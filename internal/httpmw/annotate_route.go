package httpmw

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type routeKey struct{}

// routeRecord carries the matched pattern out of the chi router to the
// middleware wrapped around it (access log, metrics, error logging).
type routeRecord struct{ pattern string }

// TrackRoute reserves a slot that AnnotateHTTPRoute fills once the router
// has matched. It belongs outside the router, before anything that calls
// RouteFromContext after the handler returns.
func TrackRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Value(routeKey{}).(*routeRecord); ok {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), routeKey{}, &routeRecord{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RouteFromContext returns the chi pattern matched for the request, e.g.
// "/api/workshops/{id}", or "" when nothing matched (yet).
func RouteFromContext(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	if rec, ok := ctx.Value(routeKey{}).(*routeRecord); ok {
		return rec.pattern
	}
	return ""
}

// AnnotateHTTPRoute runs inside the chi router. When the handler returns or
// panics it stores the route pattern for TrackRoute and renames the
// recording span to "METHOD pattern".
func AnnotateHTTPRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer annotateRoute(r)
		next.ServeHTTP(w, r)
	})
}

func annotateRoute(r *http.Request) {
	ctx := r.Context()
	pattern := ""
	if rc := chi.RouteContext(ctx); rc != nil {
		pattern = rc.RoutePattern()
	}
	if rec, ok := ctx.Value(routeKey{}).(*routeRecord); ok {
		rec.pattern = pattern
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	if pattern == "" {
		pattern = r.URL.Path
	}
	span.SetAttributes(attribute.String("http.route", pattern))
	span.SetName(r.Method + " " + pattern)
}
