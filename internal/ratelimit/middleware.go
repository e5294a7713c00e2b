package ratelimit

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/keithlinneman/atelier-web/internal/httpjson"
	"github.com/keithlinneman/atelier-web/internal/httpmw"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"

	// resetFormat is ISO-8601 UTC with milliseconds.
	resetFormat = "2006-01-02T15:04:05.000Z"

	DeniedMessage = "Too many requests, please try again later"
)

type deniedBody struct {
	Error deniedError `json:"error"`
}

type deniedError struct {
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// Middleware rejects requests over the per-client limit with 429 and
// annotates accepted ones with the remaining quota. The client is the IP
// resolved by httpmw.ClientIP, else the socket peer, else "unknown".
// Store failures other than ErrStoreFull let the request through.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := httpmw.ClientAddr(r)

		d, err := l.Allow(r.Context(), id)
		switch {
		case errors.Is(err, ErrStoreFull):
			if l.OnCapacity != nil {
				l.OnCapacity(id)
			}
			deny(w, retryAfterSeconds(l.window))
			return
		case err != nil:
			if l.OnStoreError != nil {
				l.OnStoreError(err)
			}
			next.ServeHTTP(w, r)
			return
		case !d.Allowed:
			deny(w, d.RetryAfter)
			return
		}

		h := w.Header()
		h.Set(HeaderLimit, strconv.Itoa(d.Limit))
		h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
		h.Set(HeaderReset, d.ResetAt.UTC().Format(resetFormat))
		next.ServeHTTP(w, r)
	})
}

func deny(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	_ = httpjson.Write(w, http.StatusTooManyRequests, deniedBody{
		Error: deniedError{Message: DeniedMessage, RetryAfter: retryAfter},
	})
}
