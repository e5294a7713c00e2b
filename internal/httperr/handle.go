package httperr

import (
	"errors"
	"net/http"

	"github.com/keithlinneman/atelier-web/internal/httpmw"
	"github.com/keithlinneman/atelier-web/internal/xerrors"
)

// HandlerFunc is an HTTP handler that reports failure by returning it.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts fn to http.HandlerFunc. A returned error or a panic inside fn
// is passed to ServeError. http.ErrAbortHandler is re-panicked so net/http
// can abort the connection.
func (h *Handler) Handle(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tw := httpmw.TrackStarted(w)
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(v)
			}
			h.ServeError(tw, r, xerrors.Recovered(v))
		}()

		if err := fn(tw, r); err != nil {
			h.ServeError(tw, r, err)
		}
	}
}
