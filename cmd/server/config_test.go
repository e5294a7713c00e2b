package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/atelier-web/internal/cfg"
)

// newTestCommand resets the package config and returns a command carrying
// its flags, parsed from args.
func newTestCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	conf = cfg.App{}
	goFS = flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.Register(goFS, &conf)

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().AddGoFlagSet(goFS)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	return cmd
}

// clearEnv unsets keys for the test and restores them afterwards, so values
// loaded from a dotenv file do not leak into other tests.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeEnvFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadConfig_Precedence(t *testing.T) {
	clearEnv(t, "PORT", "ATELIER_HTTP_PORT", "ATELIER_CORS_ORIGINS", "ATELIER_ENV_FILE")
	envFile := writeEnvFile(t, "PORT=4100\nATELIER_RATELIMIT_MAX=7\nATELIER_CORS_ORIGINS=https://a.example\n")
	t.Setenv("ATELIER_RATELIMIT_MAX", "8")
	t.Setenv("ATELIER_ADMIN_PORT", "9100")

	cmd := newTestCommand(t, "--env-file="+envFile, "--admin-port=9200")
	if err := loadConfig(t.Context(), cmd, false); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if conf.AdminPort != 9200 {
		t.Errorf("AdminPort = %d, want cli value 9200", conf.AdminPort)
	}
	if conf.RateLimitMax != 8 {
		t.Errorf("RateLimitMax = %d, want real env 8 over dotenv", conf.RateLimitMax)
	}
	if conf.HTTPPort != 4100 {
		t.Errorf("HTTPPort = %d, want 4100 from PORT in dotenv", conf.HTTPPort)
	}
	if got := conf.Origins(); len(got) != 1 || got[0] != "https://a.example" {
		t.Errorf("Origins = %v", got)
	}
}

func TestLoadConfig_EnvFileFromEnvironment(t *testing.T) {
	clearEnv(t, "ATELIER_STATIC_DIR")
	envFile := writeEnvFile(t, "ATELIER_STATIC_DIR=/srv/site\n")
	t.Setenv("ATELIER_ENV_FILE", envFile)

	cmd := newTestCommand(t)
	if err := loadConfig(t.Context(), cmd, false); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if conf.StaticDir != "/srv/site" {
		t.Fatalf("StaticDir = %q", conf.StaticDir)
	}
}

func TestLoadConfig_MissingEnvFileIgnored(t *testing.T) {
	clearEnv(t, "ATELIER_ENV_FILE")
	cmd := newTestCommand(t, "--env-file="+filepath.Join(t.TempDir(), "absent.env"))
	if err := loadConfig(t.Context(), cmd, false); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
}

func TestLoadConfig_Validate(t *testing.T) {
	clearEnv(t, "ATELIER_ENV_FILE", "ATELIER_ENV", "APP_ENV", "NODE_ENV", "PORT", "ATELIER_HTTP_PORT",
		"ATELIER_DATABASE_URL", "DATABASE_URL", "ATELIER_JWT_SECRET", "JWT_SECRET")

	cmd := newTestCommand(t, "--env-file=", "--env=production")
	err := loadConfig(t.Context(), cmd, true)
	if err == nil || !strings.Contains(err.Error(), "config error") {
		t.Fatalf("err = %v, want production validation failure", err)
	}

	cmd = newTestCommand(t, "--env-file=", "--env=development")
	if err := loadConfig(t.Context(), cmd, true); err != nil {
		t.Fatalf("development config: %v", err)
	}

	// nothing configured: neither production nor development
	cmd = newTestCommand(t, "--env-file=")
	if err := loadConfig(t.Context(), cmd, true); err != nil {
		t.Fatalf("unconfigured start: %v", err)
	}
	if conf.Mode() != cfg.Unset {
		t.Fatalf("mode = %q, want unset", conf.Mode())
	}
}

func TestExplicitFlags(t *testing.T) {
	cmd := newTestCommand(t, "--http-port=3100")
	explicit := explicitFlags(cmd)
	if !explicit("http-port") {
		t.Error("http-port should be explicit")
	}
	if explicit("admin-port") || explicit("no-such-flag") {
		t.Error("unset flags should not be explicit")
	}
}
