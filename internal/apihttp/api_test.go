package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/atelier-web/internal/cfg"
	"github.com/keithlinneman/atelier-web/internal/version"
)

type fakePinger struct {
	err      error
	calls    int
	deadline time.Duration
}

func (f *fakePinger) PingContext(ctx context.Context) error {
	f.calls++
	dl, ok := ctx.Deadline()
	if !ok {
		return errors.New("ping without deadline")
	}
	f.deadline = time.Until(dl)
	return f.err
}

var (
	started = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now     = started.Add(90*time.Minute + 500*time.Millisecond)
)

func newRouter(opts Options) http.Handler {
	if opts.Now == nil {
		opts.Now = func() time.Time { return now }
	}
	if opts.Started.IsZero() {
		opts.Started = started
	}
	r := chi.NewRouter()
	New(opts).RegisterRoutes(r)
	return r
}

func getStatus(t *testing.T, h http.Handler) (*httptest.ResponseRecorder, StatusResponse) {
	t.Helper()
	return getStatusURL(t, h, "/api/status")
}

func getStatusURL(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, StatusResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var resp StatusResponse
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, resp
}

func TestStatus_NoDatabase(t *testing.T) {
	rec, resp := getStatus(t, newRouter(Options{Mode: cfg.Development}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("Cache-Control = %q", cc)
	}
	if resp.App != version.AppName {
		t.Fatalf("app = %q", resp.App)
	}
	if resp.Version != version.Get().Version {
		t.Fatalf("version = %q", resp.Version)
	}
	if resp.Mode != "development" {
		t.Fatalf("mode = %q", resp.Mode)
	}
	if resp.Database != DatabaseDisabled {
		t.Fatalf("database = %q, want disabled", resp.Database)
	}
	if resp.UptimeSeconds != 5400 {
		t.Fatalf("uptimeSeconds = %d, want 5400", resp.UptimeSeconds)
	}
	if !resp.StartedAt.Equal(started) {
		t.Fatalf("startedAt = %v", resp.StartedAt)
	}
	if !resp.ServerTime.Equal(now.Truncate(time.Second)) {
		t.Fatalf("serverTime = %v", resp.ServerTime)
	}
}

func TestStatus_DatabaseUp(t *testing.T) {
	db := &fakePinger{}
	_, resp := getStatus(t, newRouter(Options{Mode: cfg.Production, Database: db}))

	if resp.Database != DatabaseUp {
		t.Fatalf("database = %q, want up", resp.Database)
	}
	if db.calls != 1 {
		t.Fatalf("ping calls = %d, want 1", db.calls)
	}
	if db.deadline <= 0 || db.deadline > dbPingTimeout {
		t.Fatalf("ping deadline in %s, want within the 2s default", db.deadline)
	}
}

func TestStatus_QueryOptions(t *testing.T) {
	db := &fakePinger{}
	h := newRouter(Options{Mode: cfg.Production, Database: db})

	_, resp := getStatusURL(t, h, "/api/status?database=skip")
	if resp.Database != DatabaseUnchecked || db.calls != 0 {
		t.Fatalf("skip: database = %q, pings = %d", resp.Database, db.calls)
	}

	_, resp = getStatusURL(t, h, "/api/status?database=ping&timeoutMs=300")
	if resp.Database != DatabaseUp || db.calls != 1 {
		t.Fatalf("ping: database = %q, pings = %d", resp.Database, db.calls)
	}
	if db.deadline <= 0 || db.deadline > 300*time.Millisecond {
		t.Fatalf("ping deadline in %s, want <= 300ms", db.deadline)
	}
}

func TestStatus_InvalidQuery(t *testing.T) {
	tests := []struct {
		query string
		msg   string
	}{
		{"database=maybe", "database must be one of: ping skip"},
		{"timeoutMs=10", "timeoutMs must be at least 50"},
		{"timeoutMs=60000", "timeoutMs must not exceed 5000"},
		{"timeoutMs=soon", `timeoutMs must be an integer, got "soon"`},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			db := &fakePinger{}
			rec, _ := getStatusURL(t, newRouter(Options{Mode: cfg.Production, Database: db}), "/api/status?"+tt.query)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var env struct {
				Error struct {
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.Error.Message != tt.msg {
				t.Fatalf("message = %q, want %q", env.Error.Message, tt.msg)
			}
			if db.calls != 0 {
				t.Fatal("database pinged for a rejected request")
			}
		})
	}
}

func TestStatus_DatabaseDownIsStill200(t *testing.T) {
	db := &fakePinger{err: errors.New("connection refused")}
	rec, resp := getStatus(t, newRouter(Options{Mode: cfg.Production, Database: db}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp.Database != DatabaseDown {
		t.Fatalf("database = %q, want down", resp.Database)
	}
}

func TestStatus_OnlyGet(t *testing.T) {
	h := newRouter(Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestNew_Defaults(t *testing.T) {
	before := time.Now()
	api := New(Options{})

	if api.logger == nil || api.errors == nil || api.now == nil {
		t.Fatal("defaults not applied")
	}
	if api.started.Before(before) {
		t.Fatalf("started = %v, want >= %v", api.started, before)
	}
}
