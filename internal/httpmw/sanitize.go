package httpmw

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Sanitize removes NUL bytes from query values, parsed form values and every
// string inside the parsed JSON body before handlers run. Non-string values
// and structure are left alone. It never fails.
func Sanitize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL != nil && strings.Contains(r.URL.RawQuery, "%00") {
			q := r.URL.Query()
			if sanitizeValues(q) {
				r.URL.RawQuery = q.Encode()
			}
		}
		sanitizeValues(r.Form)
		sanitizeValues(r.PostForm)

		if v, ok := BodyFromContext(r.Context()); ok {
			if clean, changed := sanitize(v); changed {
				r = r.WithContext(withBody(r.Context(), clean))
				if data, err := encodeBody(clean); err == nil {
					r.Body = io.NopCloser(bytes.NewReader(data))
					r.ContentLength = int64(len(data))
					r.Header.Set("Content-Length", strconv.Itoa(len(data)))
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// SanitizeString returns s without NUL bytes.
func SanitizeString(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// SanitizeValue cleans a decoded JSON value. Maps and slices are modified in
// place; the returned value must be used for a top-level string.
func SanitizeValue(v any) any {
	out, _ := sanitize(v)
	return out
}

func sanitize(v any) (any, bool) {
	switch x := v.(type) {
	case string:
		if strings.IndexByte(x, 0) < 0 {
			return x, false
		}
		return SanitizeString(x), true
	case map[string]any:
		changed := false
		for k, e := range x {
			if ne, c := sanitize(e); c {
				x[k] = ne
				changed = true
			}
		}
		return x, changed
	case []any:
		changed := false
		for i, e := range x {
			if ne, c := sanitize(e); c {
				x[i] = ne
				changed = true
			}
		}
		return x, changed
	default:
		return v, false
	}
}

func sanitizeValues(vals url.Values) bool {
	changed := false
	for _, vs := range vals {
		for i, s := range vs {
			if strings.IndexByte(s, 0) >= 0 {
				vs[i] = SanitizeString(s)
				changed = true
			}
		}
	}
	return changed
}

func encodeBody(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
