// Package httperr is the terminal error stage of the HTTP stack. Every
// failure surfacing from a handler, the body parser or a recovered panic is
// classified with apperr and answered with the JSON error envelope.
package httperr

import (
	"fmt"
	"net/http"

	"github.com/keithlinneman/atelier-web/internal/apperr"
	"github.com/keithlinneman/atelier-web/internal/cfg"
	"github.com/keithlinneman/atelier-web/internal/httpjson"
	"github.com/keithlinneman/atelier-web/internal/httpmw"
	"github.com/keithlinneman/atelier-web/internal/log"
	"github.com/keithlinneman/atelier-web/internal/xerrors"
)

const (
	msgInternal   = "Internal server error"
	msgUnexpected = "An unexpected error occurred"
)

// Kinds reported to Options.OnError.
const (
	KindOperational = "operational"
	KindUnexpected  = "unexpected"
	KindNotFound    = "not_found"
)

type Options struct {
	// Logger is used when the request context carries none.
	Logger log.Logger
	Mode   cfg.Mode
	// OnError is called once per handled error, e.g. for metrics.
	OnError func(kind string, status int)
}

type Handler struct {
	base    log.Logger
	mode    cfg.Mode
	onError func(kind string, status int)
}

func New(opts Options) *Handler {
	return &Handler{base: opts.Logger, mode: opts.Mode, onError: opts.OnError}
}

// started is implemented by response writers that know whether headers
// have gone out.
type started interface {
	Written() bool
}

// ServeError logs err and writes the error response. When the response has
// already started it only logs, so a request is never answered twice.
func (h *Handler) ServeError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	ctx := r.Context()
	L := log.FromContextOr(ctx, h.base)

	var (
		status int
		msg    string
		kind   string
	)
	switch o := apperr.Classify(err).(type) {
	case apperr.Operational:
		status, msg, kind = o.Status, o.Message, KindOperational
	case apperr.Unexpected:
		status, kind = http.StatusInternalServerError, KindUnexpected
		if h.mode.IsProduction() {
			msg = msgInternal
		} else if msg = o.Err.Error(); msg == "" {
			msg = msgUnexpected
		}
	}

	kv := []any{
		"http.request.method", r.Method,
		"url.path", r.URL.Path,
		"http.response.status_code", status,
		"error_kind", kind,
	}
	if route := httpmw.RouteFromContext(ctx); route != "" {
		kv = append(kv, "http.route", route)
	}
	// client mistakes are expected traffic
	if kind == KindOperational && status < http.StatusInternalServerError {
		L.Warn(ctx, "request failed", append(kv, "error", err.Error())...)
	} else {
		L.Error(ctx, err, "request failed", kv...)
	}
	if h.onError != nil {
		h.onError(kind, status)
	}

	if sw, ok := w.(started); ok && sw.Written() {
		L.Warn(ctx, "response already started, error response dropped", "url.path", r.URL.Path)
		return
	}

	body := httpjson.ErrorBody{Message: msg}
	if h.mode.IsDevelopment() {
		body.Stack = stackOf(err)
	}
	_ = httpjson.Write(w, status, httpjson.ErrorEnvelope{Error: body})
}

// NotFound answers requests no route matched.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	if h.onError != nil {
		h.onError(KindNotFound, http.StatusNotFound)
	}
	_ = httpjson.Error(w, http.StatusNotFound, fmt.Sprintf("Route %s %s not found", r.Method, r.URL.Path))
}

func stackOf(err error) string {
	if s := xerrors.Stack(err); s != "" {
		return s
	}
	// no stack recorded where the error was made; the boundary's is the best left
	return xerrors.RenderPCs(xerrors.Callers(2))
}
