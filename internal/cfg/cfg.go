package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

type App struct {
	Env       string
	HTTPPort  int
	AdminPort int
	LogSource bool
	EnvFile   string
	SSMPath   string

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	RateLimitWindow     time.Duration
	RateLimitMax        int
	RateLimitMaxEntries int
	RateLimitRedisURL   string

	MaxBodyBytes     int64
	TrustedProxyHops int
	CORSOrigins      string
	StaticDir        string

	DatabaseURL string
	JWTSecret   string

	ShutdownDrain   time.Duration
	ShutdownTimeout time.Duration
}

const (
	DefaultHTTPPort     = 3000
	DefaultMaxBodyBytes = 50 << 20
	MinJWTSecretLen     = 32
)

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.StringVar(&c.Env, "env", "", "runtime mode: development|production|test (empty runs neither)")
	fs.IntVar(&c.HTTPPort, "http-port", DefaultHTTPPort, "preferred listen TCP port; the next free port in a window of 20 is used if busy")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port for metrics, health and pprof (0 disables)")
	fs.BoolVar(&c.LogSource, "log-source", false, "add caller file:line to log entries")
	fs.StringVar(&c.EnvFile, "env-file", ".env", "dotenv file loaded into the environment if present")
	fs.StringVar(&c.SSMPath, "ssm-path", "", "SSM parameter path to read flag values from, e.g. /atelier/prod")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", false, "enable pprof handlers on the admin port")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "enable pushing profiles to pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.DurationVar(&c.RateLimitWindow, "ratelimit-window", time.Minute, "fixed rate limit window")
	fs.IntVar(&c.RateLimitMax, "ratelimit-max", 100, "requests allowed per client per window")
	fs.IntVar(&c.RateLimitMaxEntries, "ratelimit-max-entries", 0, "max tracked clients in memory (0 = unbounded)")
	fs.StringVar(&c.RateLimitRedisURL, "ratelimit-redis-url", "", "redis URL for a shared rate limit store (empty = in-process)")

	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", DefaultMaxBodyBytes, "max request body size in bytes")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 0, "number of trusted reverse proxies in front of the server")
	fs.StringVar(&c.CORSOrigins, "cors-origins", "", "comma separated allowed CORS origins, * for any (empty disables CORS)")
	fs.StringVar(&c.StaticDir, "static-dir", "", "directory with the built front end (empty disables static serving)")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "postgres:// or sqlite: database URL (optional outside production)")
	fs.StringVar(&c.JWTSecret, "jwt-secret", "", "session signing secret, at least 32 characters in production")

	fs.DurationVar(&c.ShutdownDrain, "shutdown-drain", 5*time.Second, "time to report not-ready before closing listeners")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", 15*time.Second, "max time to wait for in-flight requests")
}

// Mode returns the parsed runtime mode. Validate rejects unknown values.
func (c App) Mode() Mode {
	m, _ := ParseMode(c.Env)
	return m
}

// Origins splits CORSOrigins.
func (c App) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	mode, err := ParseMode(c.Env)
	if err != nil {
		errs = append(errs, err)
	}

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 0 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 0..65535)", c.AdminPort))
	}
	if c.AdminPort != 0 && c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Rate limiting
	if c.RateLimitWindow <= 0 {
		errs = append(errs, fmt.Errorf("RATELIMIT_WINDOW must be positive (got %s)", c.RateLimitWindow))
	}
	if c.RateLimitMax < 1 {
		errs = append(errs, fmt.Errorf("RATELIMIT_MAX must be >= 1 (got %d)", c.RateLimitMax))
	}
	if c.RateLimitMaxEntries < 0 {
		errs = append(errs, fmt.Errorf("RATELIMIT_MAX_ENTRIES must be >= 0 (got %d)", c.RateLimitMaxEntries))
	}
	if c.RateLimitRedisURL != "" {
		if u, err := url.Parse(c.RateLimitRedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errs = append(errs, fmt.Errorf("RATELIMIT_REDIS_URL must be a redis:// or rediss:// URL (got %q)", c.RateLimitRedisURL))
		}
	}

	// Request handling
	if c.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be >= 1 (got %d)", c.MaxBodyBytes))
	}
	if c.TrustedProxyHops < 0 || c.TrustedProxyHops > 10 {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXY_HOPS must be 0..10 (got %d)", c.TrustedProxyHops))
	}
	for _, o := range c.Origins() {
		if o == "*" {
			continue
		}
		if u, err := url.Parse(o); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("CORS_ORIGINS entry %q must be an origin like https://example.com", o))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and tenant)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.DatabaseURL != "" {
		if u, err := url.Parse(c.DatabaseURL); err != nil || !knownDBScheme(u.Scheme) {
			errs = append(errs, fmt.Errorf("DATABASE_URL must use postgres, postgresql, sqlite or file scheme"))
		}
	}

	if c.ShutdownDrain < 0 || c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_DRAIN must be >= 0 and SHUTDOWN_TIMEOUT > 0 (got %s, %s)", c.ShutdownDrain, c.ShutdownTimeout))
	}

	// Production refuses to start without its secrets. Only an explicit
	// production mode gets here; the default is Unset.
	if mode.IsProduction() {
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required in production"))
		}
		if len(c.JWTSecret) < MinJWTSecretLen {
			errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters in production", MinJWTSecretLen))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func knownDBScheme(s string) bool {
	switch s {
	case "postgres", "postgresql", "sqlite", "file":
		return true
	}
	return false
}
