package httpmw

import "net/http"

// StartedWriter records whether the response has started, so an error
// stage can tell whether it may still write a status and body.
type StartedWriter struct {
	http.ResponseWriter
	wrote bool
}

// TrackStarted wraps w, reusing w when it already is a *StartedWriter.
func TrackStarted(w http.ResponseWriter) *StartedWriter {
	if sw, ok := w.(*StartedWriter); ok {
		return sw
	}
	return &StartedWriter{ResponseWriter: w}
}

func (s *StartedWriter) WriteHeader(code int) {
	s.wrote = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *StartedWriter) Write(b []byte) (int, error) {
	s.wrote = true
	return s.ResponseWriter.Write(b)
}

// Written reports whether headers or body bytes have gone out.
func (s *StartedWriter) Written() bool { return s.wrote }

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *StartedWriter) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *StartedWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		s.wrote = true
		f.Flush()
	}
}
