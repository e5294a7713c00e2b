// Package ratelimit is per-client fixed-window rate limiting.
//
// Each client identifier gets a counter and a reset time. The first request
// after the reset time starts a new window; requests past the limit inside a
// window are rejected with 429 until it ends.
//
// The default store is process memory: not shared between instances and
// cleared on restart, with a background sweep evicting expired windows.
// RedisStore shares the quota across replicas and lets key expiry do the
// sweeping.
//
// What this does NOT protect against:
//   - distributed attacks across many ips
//   - bandwidth-bill attacks, inbound data is already accepted by the time this runs
package ratelimit
