package log

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// Entry is the serialized shape of one log call.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	Error     *ErrorInfo     `json:"error,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

// ErrorInfo is the error captured by an error-level call.
type ErrorInfo struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

type sink struct {
	mu        sync.Mutex
	out       io.Writer
	errOut    io.Writer
	minLevel  slog.Level
	pretty    bool
	addSource bool
}

// entryHandler is a slog.Handler that renders records as Entry documents.
type entryHandler struct {
	s      *sink
	attrs  []slog.Attr
	groups []string
}

func (h *entryHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.s.minLevel
}

func (h *entryHandler) WithAttrs(as []slog.Attr) slog.Handler {
	if len(as) == 0 {
		return h
	}
	next := make([]slog.Attr, 0, len(h.attrs)+1)
	next = append(next, h.attrs...)
	next = append(next, nest(h.groups, as)...)
	return &entryHandler{s: h.s, attrs: next, groups: h.groups}
}

func (h *entryHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	return &entryHandler{s: h.s, attrs: h.attrs, groups: append(groups, name)}
}

func (h *entryHandler) Handle(_ context.Context, r slog.Record) error {
	e := Entry{
		Timestamp: r.Time.UTC().Format(timestampFormat),
		Level:     r.Level.String(),
		Message:   r.Message,
	}
	if r.Time.IsZero() {
		e.Timestamp = time.Now().UTC().Format(timestampFormat)
	}

	ctxMap := make(map[string]any)
	mergeAttrs(ctxMap, h.attrs)

	recAttrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		if info, ok := a.Value.Any().(ErrorInfo); ok && a.Key == errorKey {
			e.Error = &info
			return true
		}
		recAttrs = append(recAttrs, a)
		return true
	})
	mergeAttrs(ctxMap, nest(h.groups, recAttrs))
	if len(ctxMap) > 0 {
		e.Context = ctxMap
	}

	if h.s.addSource && r.PC != 0 {
		fr, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		e.Caller = filepath.Base(filepath.Dir(fr.File)) + "/" + filepath.Base(fr.File) + ":" + strconv.Itoa(fr.Line)
	}

	return h.s.write(r.Level, &e)
}

func (s *sink) write(lvl slog.Level, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.out
	if lvl >= slog.LevelWarn {
		w = s.errOut
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if s.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(e); err != nil {
		// unencodable context values must not lose the entry
		e.Context = map[string]any{"log_encode_error": err.Error()}
		return enc.Encode(e)
	}
	return nil
}

// nest wraps as in the given group path, innermost group last.
func nest(groups []string, as []slog.Attr) []slog.Attr {
	if len(groups) == 0 || len(as) == 0 {
		return as
	}
	a := slog.Attr{Key: groups[len(groups)-1], Value: slog.GroupValue(as...)}
	for i := len(groups) - 2; i >= 0; i-- {
		a = slog.Attr{Key: groups[i], Value: slog.GroupValue(a)}
	}
	return []slog.Attr{a}
}

// mergeAttrs writes as into m. Later keys replace earlier ones; groups merge.
func mergeAttrs(m map[string]any, as []slog.Attr) {
	for _, a := range as {
		v := a.Value.Resolve()
		if v.Kind() == slog.KindGroup {
			sub := v.Group()
			if a.Key == "" {
				mergeAttrs(m, sub)
				continue
			}
			child, ok := m[a.Key].(map[string]any)
			if !ok {
				child = make(map[string]any, len(sub))
			}
			mergeAttrs(child, sub)
			m[a.Key] = child
			continue
		}
		if a.Key == "" {
			continue
		}
		m[a.Key] = valueOf(v)
	}
}

func valueOf(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(timestampFormat)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return x.Error()
		case json.Marshaler:
			return x
		case fmt.Stringer:
			return x.String()
		default:
			return x
		}
	default:
		return v.Any()
	}
}
