package ratelimit

import (
	"context"
	"time"
)

const (
	DefaultWindow        = time.Minute
	DefaultMaxRequests   = 100
	DefaultSweepInterval = time.Minute
)

// Decision is the outcome of counting one request.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Count     int
	ResetAt   time.Time
	// RetryAfter is whole seconds until the window resets, rounded up.
	RetryAfter int
}

// Limiter applies a fixed-window limit per identifier on top of a Store.
type Limiter struct {
	store         Store
	window        time.Duration
	max           int
	sweepInterval time.Duration
	now           func() time.Time

	// OnDenied is called on every rejected request, used for incrementing prometheus counter
	OnDenied func(id string)

	// OnFirstDenied is called once per identifier per window, on the first
	// request over the limit
	OnFirstDenied func(id string)

	// OnCapacity is called when a bounded store turns a new identifier away
	OnCapacity func(id string)

	// OnStoreError is called when the store fails and the request is let through
	OnStoreError func(err error)

	// OnSweep reports evicted entries after each sweep pass
	OnSweep func(evicted int)
}

type Option func(*Limiter)

// WithWindow sets the window length. Non-positive values are ignored.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithMaxRequests sets the number of requests allowed per window.
func WithMaxRequests(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.max = n
		}
	}
}

func WithStore(s Store) Option {
	return func(l *Limiter) {
		if s != nil {
			l.store = s
		}
	}
}

// WithSweepInterval sets how often expired entries are evicted from a store
// implementing Sweeper.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.sweepInterval = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func WithOnDenied(fn func(id string)) Option {
	return func(l *Limiter) { l.OnDenied = fn }
}

// WithOnFirstDenied sets a callback for the first denial per identifier and
// window, used for logging. Separate from OnDenied so logging stays at one
// line per offender while counters see every denial.
func WithOnFirstDenied(fn func(id string)) Option {
	return func(l *Limiter) { l.OnFirstDenied = fn }
}

func WithOnCapacity(fn func(id string)) Option {
	return func(l *Limiter) { l.OnCapacity = fn }
}

func WithOnStoreError(fn func(err error)) Option {
	return func(l *Limiter) { l.OnStoreError = fn }
}

func WithOnSweep(fn func(evicted int)) Option {
	return func(l *Limiter) { l.OnSweep = fn }
}

// New creates a Limiter. When the store is a Sweeper, a goroutine evicts
// expired entries every sweep interval until ctx is done.
func New(ctx context.Context, opts ...Option) *Limiter {
	l := &Limiter{
		window:        DefaultWindow,
		max:           DefaultMaxRequests,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	if l.store == nil {
		l.store = NewMemoryStore(0)
	}
	if sw, ok := l.store.(Sweeper); ok {
		go l.sweepLoop(ctx, sw)
	}
	return l
}

func (l *Limiter) Window() time.Duration { return l.window }
func (l *Limiter) Max() int              { return l.max }
func (l *Limiter) Store() Store          { return l.store }

// Allow counts one request for id. A store error is returned as is with a
// zero Decision; the caller decides whether to fail open.
func (l *Limiter) Allow(ctx context.Context, id string) (Decision, error) {
	now := l.now()
	e, err := l.store.Hit(ctx, id, now, l.window)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Allowed:   e.Count <= l.max,
		Limit:     l.max,
		Remaining: max(0, l.max-e.Count),
		Count:     e.Count,
		ResetAt:   e.ResetAt,
	}
	if d.Allowed {
		return d, nil
	}

	d.RetryAfter = retryAfterSeconds(e.ResetAt.Sub(now))
	// store lock is released by now; hooks may do slow work
	if e.Count == l.max+1 && l.OnFirstDenied != nil {
		l.OnFirstDenied(id)
	}
	if l.OnDenied != nil {
		l.OnDenied(id)
	}
	return d, nil
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func (l *Limiter) sweepLoop(ctx context.Context, sw Sweeper) {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := sw.Sweep(l.now())
			if l.OnSweep != nil {
				l.OnSweep(n)
			}
		}
	}
}
