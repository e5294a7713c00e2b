package httpmw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/keithlinneman/atelier-web/internal/apperr"
)

type bodyKey struct{}

// BodyFromContext returns the decoded JSON body stored by ParseBody.
// Objects are map[string]any, arrays []any and numbers json.Number.
func BodyFromContext(ctx context.Context) (any, bool) {
	b, ok := ctx.Value(bodyKey{}).(parsedBody)
	return b.v, ok
}

type parsedBody struct{ v any }

func withBody(ctx context.Context, v any) context.Context {
	return context.WithValue(ctx, bodyKey{}, parsedBody{v: v})
}

// ParseBody decodes JSON and urlencoded form bodies ahead of the handlers.
// The raw JSON stays readable from r.Body. Unreadable, oversized or
// malformed bodies are passed to responder as operational errors.
func ParseBody(responder ErrorResponder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			switch mediaType(r) {
			case "json":
				data, err := io.ReadAll(r.Body)
				if err != nil {
					responder.ServeError(w, r, bodyError(err))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(data))
				if len(bytes.TrimSpace(data)) == 0 {
					break
				}
				dec := json.NewDecoder(bytes.NewReader(data))
				dec.UseNumber()
				var v any
				if err := decodeOne(dec, &v); err != nil {
					responder.ServeError(w, r, apperr.Wrap(err, http.StatusBadRequest, "Invalid JSON body"))
					return
				}
				r = r.WithContext(withBody(r.Context(), v))
			case "form":
				if err := r.ParseForm(); err != nil {
					responder.ServeError(w, r, bodyError(err))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	switch {
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		return "json"
	case mt == "application/x-www-form-urlencoded":
		return "form"
	}
	return ""
}

// decodeOne decodes a single JSON value and rejects anything but
// whitespace after it.
func decodeOne(dec *json.Decoder, v *any) error {
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errTrailingData
		}
		return err
	}
	return nil
}

var errTrailingData = errors.New("unexpected data after top-level JSON value")

func bodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return apperr.PayloadTooLarge(fmt.Sprintf("Request body exceeds %d bytes", mbe.Limit))
	}
	return apperr.Wrap(err, http.StatusBadRequest, "Invalid request body")
}
