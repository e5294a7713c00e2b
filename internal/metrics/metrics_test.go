package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/atelier-web/internal/version"
)

// family gathers the registry and returns the named family, or nil.
func family(t *testing.T, m *ServerMetrics, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := m.reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// value returns the value of the series of name whose labels include want.
func value(t *testing.T, m *ServerMetrics, name string, want map[string]string) float64 {
	t.Helper()
	mf := family(t, m, name)
	if mf == nil {
		t.Fatalf("metric %s not gathered", name)
	}
	for _, s := range mf.GetMetric() {
		if !hasLabels(s, want) {
			continue
		}
		switch {
		case s.Counter != nil:
			return s.GetCounter().GetValue()
		case s.Gauge != nil:
			return s.GetGauge().GetValue()
		case s.Histogram != nil:
			return float64(s.GetHistogram().GetSampleCount())
		}
	}
	t.Fatalf("metric %s has no series with labels %v", name, want)
	return 0
}

func hasLabels(s *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range s.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestHandler_Scrape(t *testing.T) {
	m := New()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	for _, name := range []string{
		"atelier_http_inflight_requests",
		"atelier_http_panic_total",
		"atelier_http_requests_rate_limited_total",
		"atelier_ratelimit_entries",
		"atelier_database_up",
		"go_goroutines",
		"process_",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("scrape missing %q", name)
		}
	}
}

func TestNew_IsolatedRegistries(t *testing.T) {
	a, b := New(), New()
	a.IncHttpPanic()
	if got := value(t, b, "atelier_http_panic_total", nil); got != 0 {
		t.Fatalf("second registry saw %v panics", got)
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.IncHttpPanic()
	m.IncRateLimitDenied()
	m.IncRateLimitDenied()
	m.IncRateLimitCapacity()
	m.IncRateLimitStoreError()
	m.AddRateLimitSwept(3)
	m.AddRateLimitSwept(0)
	m.AddRateLimitSwept(-2)

	tests := []struct {
		name string
		want float64
	}{
		{"atelier_http_panic_total", 1},
		{"atelier_http_requests_rate_limited_total", 2},
		{"atelier_http_requests_rate_limited_capacity_total", 1},
		{"atelier_ratelimit_store_errors_total", 1},
		{"atelier_ratelimit_swept_entries_total", 3},
	}
	for _, tt := range tests {
		if got := value(t, m, tt.name, nil); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestGauges(t *testing.T) {
	m := New()
	m.SetRateLimitEntries(42)
	m.SetListenPort("http", 3002)
	m.SetListenPort("admin", 9000)
	m.SetPortFallback(true)
	m.SetDatabaseUp(true)
	m.SetProfilingActive(false)

	if got := value(t, m, "atelier_ratelimit_entries", nil); got != 42 {
		t.Errorf("entries = %v", got)
	}
	if got := value(t, m, "atelier_http_listen_port", map[string]string{"listener": "http"}); got != 3002 {
		t.Errorf("http port = %v", got)
	}
	if got := value(t, m, "atelier_http_listen_port", map[string]string{"listener": "admin"}); got != 9000 {
		t.Errorf("admin port = %v", got)
	}
	if got := value(t, m, "atelier_http_listen_port_fallback", nil); got != 1 {
		t.Errorf("fallback = %v", got)
	}
	if got := value(t, m, "atelier_database_up", nil); got != 1 {
		t.Errorf("database_up = %v", got)
	}
	if got := value(t, m, "atelier_profiling_active", nil); got != 0 {
		t.Errorf("profiling_active = %v", got)
	}

	m.SetDatabaseUp(false)
	if got := value(t, m, "atelier_database_up", nil); got != 0 {
		t.Errorf("database_up after down = %v", got)
	}
}

func TestObserveAppError(t *testing.T) {
	m := New()
	m.ObserveAppError("operational", 400)
	m.ObserveAppError("operational", 400)
	m.ObserveAppError("unexpected", 500)

	if got := value(t, m, "atelier_app_errors_total", map[string]string{"kind": "operational", "status": "400"}); got != 2 {
		t.Errorf("operational/400 = %v", got)
	}
	if got := value(t, m, "atelier_app_errors_total", map[string]string{"kind": "unexpected", "status": "500"}); got != 1 {
		t.Errorf("unexpected/500 = %v", got)
	}
}

func TestSetBuildInfoFromVersion(t *testing.T) {
	dirty := true
	tests := []struct {
		name      string
		vcsDirty  *bool
		wantDirty string
	}{
		{"dirty", &dirty, "true"},
		{"unknown", nil, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.SetBuildInfoFromVersion("atelier-web", "server", version.Info{
				Version:   "v1.2.3",
				Commit:    "abc123",
				GoVersion: "go1.24",
				VCSDirty:  tt.vcsDirty,
			})
			want := map[string]string{
				"app":       "atelier-web",
				"component": "server",
				"version":   "v1.2.3",
				"commit":    "abc123",
				"vcs_dirty": tt.wantDirty,
			}
			if got := value(t, m, "atelier_build_info", want); got != 1 {
				t.Fatalf("build_info = %v", got)
			}
		})
	}
}

func TestMiddleware_ChiRouteLabels(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Get("/api/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("item"))
	})
	r.Get("/api/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	h := m.Middleware(r)

	for _, path := range []string{"/api/items/1", "/api/items/2", "/api/boom", "/nowhere"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	tests := []struct {
		labels map[string]string
		want   float64
	}{
		{map[string]string{"method": "GET", "route": "/api/items/{id}", "status": "200"}, 2},
		{map[string]string{"method": "GET", "route": "/api/boom", "status": "503"}, 1},
		{map[string]string{"method": "GET", "route": "unmatched", "status": "404"}, 1},
	}
	for _, tt := range tests {
		if got := value(t, m, "atelier_http_requests_total", tt.labels); got != tt.want {
			t.Errorf("requests_total%v = %v, want %v", tt.labels, got, tt.want)
		}
	}

	if got := value(t, m, "atelier_http_errors_total", map[string]string{"route": "/api/boom"}); got != 1 {
		t.Errorf("errors_total = %v, want 1", got)
	}
	if mf := family(t, m, "atelier_http_errors_total"); len(mf.GetMetric()) != 1 {
		t.Errorf("errors_total series = %d, want only the 5xx route", len(mf.GetMetric()))
	}
	if got := value(t, m, "atelier_http_request_duration_seconds", map[string]string{"route": "/api/items/{id}"}); got != 2 {
		t.Errorf("duration samples = %v, want 2", got)
	}
}

func TestMiddleware_ResponseSize(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 300))
		_, _ = w.Write(make([]byte, 200))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/upload", nil))

	if rec.Body.Len() != 500 {
		t.Fatalf("passthrough body = %d bytes", rec.Body.Len())
	}
	mf := family(t, m, "atelier_http_response_size_bytes")
	if mf == nil || len(mf.GetMetric()) != 1 {
		t.Fatalf("response size family = %v", mf)
	}
	if sum := mf.GetMetric()[0].GetHistogram().GetSampleSum(); sum != 500 {
		t.Fatalf("size sum = %v, want 500", sum)
	}
}

func TestMiddleware_StatusDefaults(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{"no write", func(http.ResponseWriter, *http.Request) {}, "200"},
		{"write only", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("x")) }, "200"},
		{"first header wins", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.WriteHeader(http.StatusOK)
		}, "429"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.Middleware(tt.handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
			if got := value(t, m, "atelier_http_requests_total", map[string]string{"status": tt.want}); got != 1 {
				t.Fatalf("status %s count = %v", tt.want, got)
			}
		})
	}
}

func TestMiddleware_InflightReturnsToZero(t *testing.T) {
	m := New()
	var during float64
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = value(t, m, "atelier_http_inflight_requests", nil)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if during != 1 {
		t.Errorf("inflight during request = %v, want 1", during)
	}
	if after := value(t, m, "atelier_http_inflight_requests", nil); after != 0 {
		t.Errorf("inflight after request = %v, want 0", after)
	}
}

func TestTraceExemplar(t *testing.T) {
	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")

	sampled := trace.ContextWithSpanContext(t.Context(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled,
	}))
	unsampled := trace.ContextWithSpanContext(t.Context(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid, SpanID: sid,
	}))

	if ex := traceExemplar(sampled); ex["trace_id"] != tid.String() {
		t.Errorf("sampled exemplar = %v", ex)
	}
	if ex := traceExemplar(unsampled); ex != nil {
		t.Errorf("unsampled exemplar = %v, want nil", ex)
	}
	if ex := traceExemplar(t.Context()); ex != nil {
		t.Errorf("no-span exemplar = %v, want nil", ex)
	}
}
