// Package apihttp serves the JSON endpoints under /api.
package apihttp

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/atelier-web/internal/apperr"
	"github.com/keithlinneman/atelier-web/internal/cfg"
	"github.com/keithlinneman/atelier-web/internal/health"
	"github.com/keithlinneman/atelier-web/internal/httperr"
	"github.com/keithlinneman/atelier-web/internal/httpjson"
	"github.com/keithlinneman/atelier-web/internal/httpmw"
	"github.com/keithlinneman/atelier-web/internal/log"
	"github.com/keithlinneman/atelier-web/internal/validate"
	"github.com/keithlinneman/atelier-web/internal/version"
)

// Database states reported by /api/status.
const (
	DatabaseUp       = "up"
	DatabaseDown     = "down"
	DatabaseDisabled = "disabled"
	// DatabaseUnchecked is reported for ?database=skip.
	DatabaseUnchecked = "unchecked"
)

const dbPingTimeout = 2 * time.Second

type Options struct {
	Logger log.Logger
	Errors *httperr.Handler
	Mode   cfg.Mode
	// Database is nil when no database is configured.
	Database health.Pinger
	Started  time.Time
	Now      func() time.Time
}

// API implements the /api endpoints
type API struct {
	logger  log.Logger
	errors  *httperr.Handler
	mode    cfg.Mode
	db      health.Pinger
	started time.Time
	now     func() time.Time
}

func New(opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Errors == nil {
		opts.Errors = httperr.New(httperr.Options{Logger: opts.Logger, Mode: opts.Mode})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Started.IsZero() {
		opts.Started = opts.Now()
	}
	return &API{
		logger:  opts.Logger,
		errors:  opts.Errors,
		mode:    opts.Mode,
		db:      opts.Database,
		started: opts.Started,
		now:     opts.Now,
	}
}

// RegisterRoutes attaches the API endpoints to the router
func (api *API) RegisterRoutes(r chi.Router) {
	r.With(httpmw.Scope("api.status")).Get("/api/status", api.errors.Handle(api.HandleStatus))
}

// StatusResponse describes the running service
type StatusResponse struct {
	App           string    `json:"app"`
	Version       string    `json:"version"`
	Commit        string    `json:"commit"`
	Mode          string    `json:"mode"`
	ServerTime    time.Time `json:"serverTime"`
	StartedAt     time.Time `json:"startedAt"`
	UptimeSeconds int64     `json:"uptimeSeconds"`
	Database      string    `json:"database"`
	// DatabaseLatencyMS is the ping round trip, set when a ping ran.
	DatabaseLatencyMS float64 `json:"databaseLatencyMs,omitempty"`
}

// StatusQuery holds the optional /api/status query parameters.
type StatusQuery struct {
	// Database is "ping" (default) or "skip", which reports the database
	// as unchecked without touching it.
	Database string `json:"database" validate:"omitempty,oneof=ping skip"`
	// TimeoutMS bounds the database ping; 0 uses the 2s default.
	TimeoutMS int `json:"timeoutMs" validate:"omitempty,min=50,max=5000"`
}

// ParseStatusQuery reads and validates the /api/status query string. Bad
// values are operational 400s.
func ParseStatusQuery(q url.Values) (StatusQuery, error) {
	sq := StatusQuery{Database: q.Get("database")}
	if raw := q.Get("timeoutMs"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return StatusQuery{}, apperr.Newf(http.StatusBadRequest, "timeoutMs must be an integer, got %q", raw)
		}
		sq.TimeoutMS = n
	}
	if err := validate.Struct(sq); err != nil {
		return StatusQuery{}, err
	}
	return sq, nil
}

func (q StatusQuery) pingTimeout() time.Duration {
	if q.TimeoutMS > 0 {
		return time.Duration(q.TimeoutMS) * time.Millisecond
	}
	return dbPingTimeout
}

// HandleStatus reports build, mode, uptime and database state. A database
// that fails its ping is reported, not treated as a request failure.
func (api *API) HandleStatus(w http.ResponseWriter, r *http.Request) error {
	q, err := ParseStatusQuery(r.URL.Query())
	if err != nil {
		return err
	}

	ctx := r.Context()
	now := api.now().UTC()
	vi := version.Get()

	resp := StatusResponse{
		App:           version.AppName,
		Version:       vi.Version,
		Commit:        vi.Commit,
		Mode:          api.mode.String(),
		ServerTime:    now.Truncate(time.Second),
		StartedAt:     api.started.UTC().Truncate(time.Second),
		UptimeSeconds: int64(now.Sub(api.started).Seconds()),
	}
	resp.Database, resp.DatabaseLatencyMS = api.databaseState(ctx, q)

	log.FromContextOr(ctx, api.logger).Debug(ctx, "served status", "database", resp.Database)
	return httpjson.Write(w, http.StatusOK, resp)
}

func (api *API) databaseState(ctx context.Context, q StatusQuery) (string, float64) {
	switch {
	case api.db == nil:
		return DatabaseDisabled, 0
	case q.Database == "skip":
		return DatabaseUnchecked, 0
	}

	L := log.FromContextOr(ctx, api.logger)
	timer := log.StartTimer(L, "database ping")
	err := health.Ping("database", api.db, q.pingTimeout())(ctx)
	ms := timer.End(ctx)
	if err != nil {
		L.Warn(ctx, "database ping failed", "error", err, "duration_ms", ms)
		return DatabaseDown, ms
	}
	return DatabaseUp, ms
}
