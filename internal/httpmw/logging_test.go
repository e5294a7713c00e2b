package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keithlinneman/atelier-web/internal/log"
)

func TestWithLogger_AttachesRequestFields(t *testing.T) {
	spy := newSpy()
	var got log.Logger
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = log.FromContext(r.Context())
	}), RequestID(""), ClientIP, WithLogger(spy))

	r := httptest.NewRequest(http.MethodPost, "/api/users?secret=1", http.NoBody)
	r.RemoteAddr = "192.0.2.10:4000"
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got != log.Logger(spy) {
		t.Fatal("request logger not stored in context")
	}
	if field(spy.fields, "client.address") != "192.0.2.10" {
		t.Errorf("client.address = %v", field(spy.fields, "client.address"))
	}
	if field(spy.fields, "url.path") != "/api/users" {
		t.Errorf("url.path = %v", field(spy.fields, "url.path"))
	}
	if id, _ := field(spy.fields, "request_id").(string); id == "" {
		t.Error("request_id missing")
	}
}

func TestAccessLog_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
		msg    string
	}{
		{http.StatusOK, "info", "GET /api/items 200"},
		{http.StatusNotFound, "warn", "GET /api/items 404"},
		{http.StatusTooManyRequests, "warn", "GET /api/items 429"},
		{http.StatusInternalServerError, "error", "GET /api/items 500"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			spy := newSpy()
			h := AccessLog()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("abc"))
			}))

			r := httptest.NewRequest(http.MethodGet, "/api/items", http.NoBody)
			r = r.WithContext(log.WithContext(r.Context(), spy))
			h.ServeHTTP(httptest.NewRecorder(), r)

			calls := spy.snapshot()
			if len(calls) != 1 {
				t.Fatalf("calls = %d", len(calls))
			}
			c := calls[0]
			if c.level != tt.level || c.msg != tt.msg {
				t.Fatalf("got %s %q, want %s %q", c.level, c.msg, tt.level, tt.msg)
			}
			if field(c.kv, "http.response.status_code") != tt.status {
				t.Errorf("status field = %v", field(c.kv, "http.response.status_code"))
			}
			if field(c.kv, "http.response.body.size") != int64(3) {
				t.Errorf("body size = %v", field(c.kv, "http.response.body.size"))
			}
		})
	}
}

func TestAccessLog_ImplicitOK(t *testing.T) {
	spy := newSpy()
	h := AccessLog()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	r := httptest.NewRequest(http.MethodGet, "/api/ping", http.NoBody)
	r = r.WithContext(log.WithContext(r.Context(), spy))
	h.ServeHTTP(httptest.NewRecorder(), r)

	calls := spy.snapshot()
	if len(calls) != 1 || calls[0].msg != "GET /api/ping 200" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestAccessLog_SkipsHealthAndAssets(t *testing.T) {
	for _, p := range []string{"/-/healthy", "/-/ready", "/assets/app.js", "/img/logo.PNG"} {
		spy := newSpy()
		h := AccessLog()(okHandler)
		r := httptest.NewRequest(http.MethodGet, p, http.NoBody)
		r = r.WithContext(log.WithContext(r.Context(), spy))
		h.ServeHTTP(httptest.NewRecorder(), r)
		if n := len(spy.snapshot()); n != 0 {
			t.Errorf("%s logged %d entries", p, n)
		}
	}
}

func TestResponseWriter_Written(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), ctx: context.Background()}
	if rw.Written() {
		t.Fatal("fresh writer reports written")
	}
	_, _ = rw.Write([]byte("x"))
	if !rw.Written() || rw.statusOrOK() != http.StatusOK {
		t.Fatal("write should mark the response started with 200")
	}
}

func TestSchemeFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	if got := schemeFromRequest(r); got != "http" {
		t.Errorf("plain = %q", got)
	}
	r.Header.Set("X-Forwarded-Proto", "https, http")
	if got := schemeFromRequest(r); got != "https" {
		t.Errorf("forwarded = %q", got)
	}
}
