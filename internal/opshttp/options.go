package opshttp

import (
	"net/http"

	"github.com/keithlinneman/atelier-web/internal/health"
)

type Options struct {
	// Port defaults to 9000.
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// AllowPublic disables the private-network check, for containers
	// whose probes arrive from a public address.
	AllowPublic bool
	// Handlers adds operator endpoints by path, e.g. "/-/ratelimit".
	Handlers    map[string]http.Handler
	OnPanic     func() // Optional callback for when panics are recovered, e.g. incrementing prometheus counters
}
