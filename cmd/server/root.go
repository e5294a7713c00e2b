package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/atelier-web/internal/cfg"
	v "github.com/keithlinneman/atelier-web/internal/version"
)

// EnvPrefix prefixes environment variables mapped to flags, e.g.
// ATELIER_HTTP_PORT for -http-port.
const EnvPrefix = "ATELIER_"

var (
	conf  cfg.App
	goFS  = flag.NewFlagSet(v.AppName, flag.ContinueOnError)
	flags = struct{ portsFrom int }{}
)

var rootCmd = &cobra.Command{
	Use:   v.AppName,
	Short: "Serve the atelier site and API behind the hardened request pipeline",
	Long: `atelier-web serves the built front end and the JSON API behind a fixed
middleware pipeline: security headers, body parsing, input sanitizing and a
per-client fixed-window rate limiter.

Every flag can also be set as ATELIER_<FLAG> (e.g. ATELIER_HTTP_PORT), from a
.env file, or from SSM parameters under -ssm-path. PORT, NODE_ENV,
DATABASE_URL, JWT_SECRET and REDIS_URL are honoured as fallbacks.`,
	Version:       v.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the public and admin listeners (default)",
	RunE:  runServe,
}

func init() {
	cfg.Register(goFS, &conf)
	rootCmd.PersistentFlags().AddGoFlagSet(goFS)

	portsCmd.Flags().IntVar(&flags.portsFrom, "from", 0, "first port to probe (default: -http-port)")

	rootCmd.AddCommand(serveCmd, versionCmd, portsCmd)
}

// explicitFlags reports flags set on the command line.
func explicitFlags(cmd *cobra.Command) func(string) bool {
	return func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		rootCmd.PrintErrln("error:", err)
		os.Exit(1)
	}
}
