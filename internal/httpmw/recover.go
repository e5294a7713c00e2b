package httpmw

import (
	"errors"
	"net/http"

	"github.com/keithlinneman/atelier-web/internal/httpjson"
	"github.com/keithlinneman/atelier-web/internal/log"
	"github.com/keithlinneman/atelier-web/internal/xerrors"
)

// Recover turns a panic anywhere below it into an error passed to responder.
// onPanic, if set, runs first (e.g. a metrics counter). With a nil
// responder the panic is logged and a bare 500 envelope is written.
// http.ErrAbortHandler is re-panicked so net/http aborts the connection.
func Recover(responder ErrorResponder, onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := TrackStarted(w)
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}
				if onPanic != nil {
					onPanic()
				}

				err := xerrors.Recovered(v)
				if responder != nil {
					responder.ServeError(tw, r, err)
					return
				}
				ctx := r.Context()
				log.FromContext(ctx).Error(ctx, err, "httpserver panic recovered", "url.path", r.URL.Path)
				if !tw.Written() {
					_ = httpjson.Error(tw, http.StatusInternalServerError, "Internal server error")
				}
			}()

			next.ServeHTTP(tw, r)
		})
	}
}
