package httpmw

import "net/http"

// Chain wraps h so that mws[0] sees the request first. Nil entries are
// skipped, which lets callers pass optional stages such as a disabled
// CORS or rate limit middleware inline.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}
