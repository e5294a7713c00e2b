package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/atelier-web/internal/cfg"
	"github.com/keithlinneman/atelier-web/internal/health"
	"github.com/keithlinneman/atelier-web/internal/httperr"
	"github.com/keithlinneman/atelier-web/internal/httpmw"
	"github.com/keithlinneman/atelier-web/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	// Errors answers 404s, body parse failures and panics. Defaults to a
	// production handler logging to Logger.
	Errors *httperr.Handler

	// Optional middleware; nil entries are skipped.
	MetricsMW   func(http.Handler) http.Handler
	RateLimitMW func(http.Handler) http.Handler
	OnPanic     func()

	ClientIPOpts httpmw.ClientIPOptions
	CORSOrigins  []string
	MaxBodyBytes int64 // default: 50 MiB

	Health    health.Probe
	Readiness health.Probe

	APIRoutes func(r chi.Router)
	// SiteHandler receives every request no route matched.
	SiteHandler http.Handler

	ShutdownTimeout time.Duration // default: 5s
}

const DefaultMaxBodyBytes = 50 << 20

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Errors == nil {
		o.Errors = httperr.New(httperr.Options{Logger: o.Logger, Mode: cfg.Production})
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
}
