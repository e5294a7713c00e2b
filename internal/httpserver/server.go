package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/atelier-web/internal/health"
	"github.com/keithlinneman/atelier-web/internal/httpmw"
	"github.com/keithlinneman/atelier-web/internal/xerrors"
)

// NewHandler builds an HTTP handler with routes + middleware
// main() owns *http.Server so it can do graceful shutdown
func NewHandler(opts Options) http.Handler {
	opts.setDefaults()
	errs := opts.Errors

	// chi router
	r := chi.NewRouter()

	// Record the matched pattern for the access log, error logging and span name
	r.Use(httpmw.AnnotateHTTPRoute)

	// Compress text responses (HTML/CSS/JS/JSON/SVG)
	r.Use(middleware.Compress(5,
		"text/html",
		"text/css",
		"application/javascript",
		"text/javascript",
		"application/json",
		"image/svg+xml",
		"image/x-icon",
	))

	// Register health routes at /-/healthy and /-/ready if probes provided
	if opts.Health != nil {
		r.Get("/-/healthy", health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get("/-/ready", health.ReadyzHandler(opts.Readiness))
	}

	if opts.APIRoutes != nil {
		opts.APIRoutes(r)
	}

	// Unmatched routes go to the site when there is one, else the JSON 404.
	// A known path with the wrong method is answered the same way.
	notFound := http.HandlerFunc(errs.NotFound)
	if opts.SiteHandler != nil {
		notFound = opts.SiteHandler.ServeHTTP
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	return httpmw.Chain(r,
		// Security headers outermost so every response carries them, rejections included
		httpmw.SecurityHeaders,
		// Request ID (outer so everything downstream sees it)
		httpmw.RequestID("X-Request-Id"),
		// Client IP resolution (must be before rate limiter and logging)
		httpmw.ClientIPWithOptions(opts.ClientIPOpts),
		// slot for the route pattern AnnotateHTTPRoute fills inside the router
		httpmw.TrackRoute,
		traceMW(),
		// add trace-id headers to any requests with a recording trace
		httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id"),
		opts.MetricsMW,
		// Request-scoped logging (inner so it sees trace_id, etc)
		httpmw.WithLogger(opts.Logger),
		httpmw.AccessLog(),
		// Panics below here become JSON 500s the access log still sees
		httpmw.Recover(errs, opts.OnPanic),
		httpmw.CORS(opts.CORSOrigins),
		httpmw.MaxBody(opts.MaxBodyBytes),
		httpmw.ParseBody(errs),
		httpmw.Sanitize,
		opts.RateLimitMW,
	)
}

// Decide which requests get traced
func shouldTrace(p string) bool {
	// dont trace favicon/robots.txt
	if p == "/favicon.ico" || p == "/favicon.svg" || p == "/robots.txt" {
		return false
	}
	// dont trace health checks
	if p == "/-/healthy" || p == "/-/ready" {
		return false
	}

	// dont trace static asset extensions
	switch strings.ToLower(path.Ext(p)) {
	case ".css", ".js", ".png", ".jpg", ".jpeg", ".webp", ".svg", ".ico", ".woff", ".woff2", ".map":
		return false
	}
	return true
}

func traceMW() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			"http.server",
			otelhttp.WithFilter(func(r *http.Request) bool {
				return shouldTrace(r.URL.Path)
			}),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				// AnnotateHTTPRoute will rename the span later to the final route pattern
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
		)
	}
}

// Server timeout defaults.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 30 * time.Second // bodies may be up to 50 MiB
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start public HTTP server on opts.Port, all IPv4 interfaces.
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts Options) (func(context.Context) error, error) {
	opts.setDefaults()
	if opts.Port < 1 || opts.Port > 65535 {
		return nil, xerrors.Newf("invalid port %d", opts.Port)
	}
	addr := fmt.Sprintf("0.0.0.0:%d", opts.Port)
	L := opts.Logger

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp4", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen on %s", addr)
	}

	go func() {
		L.Info(ctx, "http server listening", "addr", addr, "url", fmt.Sprintf("http://localhost:%d/", opts.Port))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, opts.ShutdownTimeout)
			defer cancel()
			retErr = srv.Shutdown(c)
			L.Info(sctx, "http server closed")
		})
		return retErr
	}
	return stop, nil
}
