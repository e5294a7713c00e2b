// Package httpmw provides HTTP middleware for the public-facing server.
//
// httpserver.NewHandler composes them outermost first: security headers,
// request ID, client IP, tracing, metrics, request logger, access log,
// panic recovery, CORS, body size limit, body parsing, input sanitizing,
// rate limiting and the chi router.
//
// Failures that need an error response (body parsing, panics) are handed to
// an ErrorResponder so every error path produces the same JSON envelope.
package httpmw

import "net/http"

// ErrorResponder writes the error response for a failed request.
type ErrorResponder interface {
	ServeError(w http.ResponseWriter, r *http.Request, err error)
}
