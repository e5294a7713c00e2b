package httpmw

import (
	"context"
	"net/http"
	"sync"

	"github.com/keithlinneman/atelier-web/internal/apperr"
	"github.com/keithlinneman/atelier-web/internal/httpjson"
	"github.com/keithlinneman/atelier-web/internal/log"
)

// fakeResponder records errors and answers with their status.
type fakeResponder struct {
	errs []error
}

func (f *fakeResponder) ServeError(w http.ResponseWriter, r *http.Request, err error) {
	f.errs = append(f.errs, err)
	status := apperr.StatusOf(err)
	msg := "Internal server error"
	if o, ok := apperr.Classify(err).(apperr.Operational); ok {
		msg = o.Message
	}
	_ = httpjson.Error(w, status, msg)
}

type spyCall struct {
	level string
	err   error
	msg   string
	kv    []any
}

// spyLogger records calls by level. With returns the same spy with the
// fields remembered so tests can inspect them.
type spyLogger struct {
	log.Logger
	mu     sync.Mutex
	calls  []spyCall
	fields []any
}

func newSpy() *spyLogger { return &spyLogger{Logger: log.Nop()} }

func (s *spyLogger) With(kv ...any) log.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = append(s.fields, kv...)
	return s
}

func (s *spyLogger) record(level string, err error, msg string, kv []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, spyCall{level: level, err: err, msg: msg, kv: kv})
}

func (s *spyLogger) Info(_ context.Context, msg string, kv ...any) { s.record("info", nil, msg, kv) }
func (s *spyLogger) Warn(_ context.Context, msg string, kv ...any) { s.record("warn", nil, msg, kv) }
func (s *spyLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	s.record("error", err, msg, kv)
}

func (s *spyLogger) snapshot() []spyCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]spyCall(nil), s.calls...)
}

func field(kv []any, key string) any {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i] == key {
			return kv[i+1]
		}
	}
	return nil
}
