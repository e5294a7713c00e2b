package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/keithlinneman/atelier-web/internal/apihttp"
	"github.com/keithlinneman/atelier-web/internal/database"
	"github.com/keithlinneman/atelier-web/internal/health"
	"github.com/keithlinneman/atelier-web/internal/httperr"
	"github.com/keithlinneman/atelier-web/internal/httpmw"
	"github.com/keithlinneman/atelier-web/internal/httpserver"
	"github.com/keithlinneman/atelier-web/internal/log"
	"github.com/keithlinneman/atelier-web/internal/metrics"
	"github.com/keithlinneman/atelier-web/internal/opshttp"
	"github.com/keithlinneman/atelier-web/internal/otelx"
	"github.com/keithlinneman/atelier-web/internal/portprobe"
	"github.com/keithlinneman/atelier-web/internal/prof"
	"github.com/keithlinneman/atelier-web/internal/ratelimit"
	"github.com/keithlinneman/atelier-web/internal/sitehandler"
	v "github.com/keithlinneman/atelier-web/internal/version"
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	started := time.Now()

	if err := loadConfig(ctx, cmd, true); err != nil {
		return err
	}
	mode := conf.Mode()
	vi := v.Get()

	// Setup logging
	lg, err := log.New(log.Options{
		Development: mode.IsDevelopment(),
		StackTraces: mode.IsDevelopment(),
		AddSource:   conf.LogSource,
		App:         v.AppName,
		Version:     vi.Version,
		Commit:      vi.Commit,
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	// no-op for slog, here so a buffered backend is flushed on shutdown
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"environment", mode.String(),
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"ratelimit_window", conf.RateLimitWindow,
		"ratelimit_max", conf.RateLimitMax,
		"ratelimit_store", storeKind(),
		"static_dir", conf.StaticDir,
		"database", conf.DatabaseURL != "",
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
	)

	// Setup pyroscope profiling
	stopProf, profErr := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Env:           mode.String(),
		Version:       vi.Version,
		Tags:          map[string]string{"component": "server", "commit": vi.Commit},
	})
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// Insecure because the collector is expected on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
		Env:       mode.String(),
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, tracing disabled")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)
	m.SetProfilingActive(conf.EnablePyroscope && profErr == nil)

	errs := httperr.New(httperr.Options{
		Logger:  L,
		Mode:    mode,
		OnError: m.ObserveAppError,
	})

	// optional database, absent is not an error
	var db *database.DB
	if conf.DatabaseURL != "" {
		timer := log.StartTimer(L, "database open")
		db, err = database.Open(ctx, conf.DatabaseURL)
		openMS := timer.End(ctx)
		if err != nil {
			L.Error(ctx, err, "database connection failed, continuing without database",
				"database_url", database.Redact(conf.DatabaseURL), "duration_ms", openMS)
			db = nil
		} else {
			L.Info(ctx, "database connected", "driver", db.Driver(), "duration_ms", openMS)
			defer db.Close()
		}
	}
	m.SetDatabaseUp(db != nil)

	limiter, rdb, err := newLimiter(ctx, L, m)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// setup toggle for server shutdown
	var gate health.ShutdownGate
	readiness := []health.Probe{gate.Probe()}
	if db != nil {
		readiness = append(readiness, health.Ping("database", db, 2*time.Second))
	}
	if rdb != nil {
		readiness = append(readiness, health.Ping("ratelimit store", redisPinger(rdb), 2*time.Second))
	}
	ready := health.All(readiness...)

	// admin listener first so the public port scan skips it
	opsHTTPStop := func(context.Context) error { return nil }
	if conf.AdminPort != 0 {
		opsHTTPStop, err = opshttp.Start(ctx, L, &opshttp.Options{
			Port:        conf.AdminPort,
			Metrics:     m.Handler(),
			EnablePprof: conf.EnablePprof,
			Health:      health.Fixed(true, ""),
			Readiness:   ready,
			OnPanic:     m.IncHttpPanic,
			Handlers:    map[string]http.Handler{"/-/ratelimit": limiter.ClientsHandler()},
		})
		if err != nil {
			return fmt.Errorf("start ops http listener: %w", err)
		}
		m.SetListenPort("admin", conf.AdminPort)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	apiOpts := apihttp.Options{Logger: L, Errors: errs, Mode: mode, Started: started}
	if db != nil {
		apiOpts.Database = db
	}
	api := apihttp.New(apiOpts)

	var site http.Handler
	if conf.StaticDir != "" {
		so, err := sitehandler.DirOptions(conf.StaticDir, http.HandlerFunc(errs.NotFound), L)
		if err != nil {
			return err
		}
		if site, err = sitehandler.New(so); err != nil {
			return err
		}
		L.Info(ctx, "serving static site", "dir", conf.StaticDir)
	}

	port, err := portprobe.Resolve(ctx, conf.HTTPPort)
	if err != nil {
		L.Error(ctx, err, "no port available", "preferred_port", conf.HTTPPort, "window", portprobe.Window)
		return err
	}
	if port != conf.HTTPPort {
		L.Warn(ctx, fmt.Sprintf("Port %d is busy, using port %d instead", conf.HTTPPort, port))
	}
	m.SetListenPort("http", port)
	m.SetPortFallback(port != conf.HTTPPort)

	siteHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger:          L,
		Port:            port,
		Errors:          errs,
		MetricsMW:       m.Middleware,
		RateLimitMW:     limiter.Middleware,
		OnPanic:         m.IncHttpPanic,
		ClientIPOpts:    httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		CORSOrigins:     conf.Origins(),
		MaxBodyBytes:    conf.MaxBodyBytes,
		Health:          health.Fixed(true, ""),
		Readiness:       ready,
		APIRoutes:       api.RegisterRoutes,
		SiteHandler:     site,
		ShutdownTimeout: conf.ShutdownTimeout,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener", "port", port)
		return err
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	L.Info(ctx, fmt.Sprintf("Server running on http://localhost:%d/", port),
		"environment", mode.String(),
		"port", port,
	)

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()
	bg := context.Background()
	L.Info(bg, "shutdown signal received, shutting down gracefully")

	// fail readiness so load balancers stop sending new requests
	gate.Set("draining")
	if conf.ShutdownDrain > 0 {
		L.Info(bg, "draining before closing listeners", "drain", conf.ShutdownDrain)
		forceCh := make(chan os.Signal, 1)
		signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-time.After(conf.ShutdownDrain):
		case <-forceCh:
			L.Warn(bg, "second signal received, skipping drain")
		}
		signal.Stop(forceCh)
	}

	shutdownCtx, cancel := context.WithTimeout(bg, conf.ShutdownTimeout)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "app http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}

	L.Info(bg, "Server closed")
	return nil
}

func storeKind() string {
	if conf.RateLimitRedisURL != "" {
		return "redis"
	}
	return "memory"
}

// newLimiter builds the rate limiter on redis when configured, else in
// memory. Warnings for capacity and store errors are throttled so a flood
// cannot flood the log too.
func newLimiter(ctx context.Context, L log.Logger, m *metrics.ServerMetrics) (*ratelimit.Limiter, *redis.Client, error) {
	var (
		store  ratelimit.Store
		client *redis.Client
	)
	if conf.RateLimitRedisURL != "" {
		var err error
		client, err = ratelimit.DialRedis(ctx, conf.RateLimitRedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("rate limit store: %w", err)
		}
		store = ratelimit.NewRedisStore(client, "")
	} else {
		store = ratelimit.NewMemoryStore(conf.RateLimitMaxEntries)
	}

	capacityWarn := &rate.Sometimes{Interval: 30 * time.Second}
	storeWarn := &rate.Sometimes{Interval: 30 * time.Second}

	limiter := ratelimit.New(ctx,
		ratelimit.WithWindow(conf.RateLimitWindow),
		ratelimit.WithMaxRequests(conf.RateLimitMax),
		ratelimit.WithStore(store),
		// increment prometheus counter on each denied request
		ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
		// only log the first denial per client and window
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "Rate limit exceeded", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func(string) {
			m.IncRateLimitCapacity()
			capacityWarn.Do(func() {
				L.Warn(ctx, "rate limit capacity reached, rejecting new clients until entries expire",
					"max_entries", conf.RateLimitMaxEntries)
			})
		}),
		ratelimit.WithOnStoreError(func(err error) {
			m.IncRateLimitStoreError()
			storeWarn.Do(func() {
				L.Error(ctx, err, "rate limit store failed, allowing request")
			})
		}),
		ratelimit.WithOnSweep(func(evicted int) {
			m.AddRateLimitSwept(evicted)
			if ms, ok := store.(*ratelimit.MemoryStore); ok {
				m.SetRateLimitEntries(ms.Len())
			}
		}),
	)
	return limiter, client, nil
}

// redisPinger adapts a redis client to a readiness check.
func redisPinger(c *redis.Client) health.Pinger {
	return health.PingFunc(func(ctx context.Context) error { return c.Ping(ctx).Err() })
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return errors.New("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	_, _ = conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
