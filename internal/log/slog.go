package log

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/atelier-web/internal/xerrors"
)

// errorKey carries the ErrorInfo of an error-level call to the handler.
const errorKey = "error"

type slogLogger struct {
	h      slog.Handler
	ns     string
	root   []slog.Attr
	attrs  []slog.Attr
	sticky *stickyContext
	stacks bool
}

func newSlog(opts Options) (Logger, error) {
	out := opts.Writer
	if out == nil {
		out = os.Stdout
	}
	errOut := opts.ErrWriter
	if errOut == nil {
		errOut = os.Stderr
	}

	minLevel := slog.LevelInfo
	if opts.Development {
		minLevel = slog.LevelDebug
	}

	var h slog.Handler = &entryHandler{s: &sink{
		out:       out,
		errOut:    errOut,
		minLevel:  minLevel,
		pretty:    opts.Development,
		addSource: opts.AddSource,
	}}
	h = otelHandler{next: h}

	ns := opts.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}

	var root []slog.Attr
	for _, a := range []slog.Attr{
		slog.String("app", opts.App),
		slog.String("version", opts.Version),
		slog.String("commit", opts.Commit),
	} {
		if a.Value.String() != "" {
			root = append(root, a)
		}
	}

	return &slogLogger{
		h:      h,
		ns:     ns,
		root:   root,
		sticky: &stickyContext{},
		stacks: opts.StackTraces,
	}, nil
}

func (s *slogLogger) Namespace() string { return s.ns }

func (s *slogLogger) With(kv ...any) Logger {
	add := kvAttrs(kv)
	// copy-on-write so loggers are safe to share concurrently
	next := make([]slog.Attr, 0, len(s.attrs)+len(add))
	next = append(next, s.attrs...)
	next = append(next, add...)
	return &slogLogger{
		h:      s.h,
		ns:     s.ns,
		root:   s.root,
		attrs:  next,
		sticky: s.sticky.clone(),
		stacks: s.stacks,
	}
}

func (s *slogLogger) Child(name string) Logger {
	ns := name
	if s.ns != "" {
		ns = s.ns + ":" + name
	}
	return &slogLogger{
		h:      s.h,
		ns:     ns,
		root:   s.root,
		sticky: &stickyContext{},
		stacks: s.stacks,
	}
}

func (s *slogLogger) SetContext(kv ...any) { s.sticky.set(kvAttrs(kv)) }
func (s *slogLogger) ClearContext()        { s.sticky.clear() }

func (s *slogLogger) Debug(ctx context.Context, msg string, kv ...any) {
	s.logWithPC(ctx, slog.LevelDebug, msg, nil, kv...)
}
func (s *slogLogger) Info(ctx context.Context, msg string, kv ...any) {
	s.logWithPC(ctx, slog.LevelInfo, msg, nil, kv...)
}
func (s *slogLogger) Warn(ctx context.Context, msg string, kv ...any) {
	s.logWithPC(ctx, slog.LevelWarn, msg, nil, kv...)
}
func (s *slogLogger) Error(ctx context.Context, err error, msg string, kv ...any) {
	var extra []slog.Attr
	if err != nil {
		info := ErrorInfo{Name: errorName(err), Message: err.Error()}
		if s.stacks {
			info.Stack = xerrors.Stack(err)
			if info.Stack == "" {
				info.Stack = xerrors.RenderPCs(xerrors.Callers(1))
			}
		}
		extra = append(extra, slog.Any(errorKey, info))
		if _, root := classifyTypes(err); root != info.Name {
			extra = append(extra, slog.String("cause_type", root))
		}
		if chain := errorChain(err); len(chain) > 1 {
			extra = append(extra, slog.Any("error_chain", chain))
		}
	}
	s.logWithPC(ctx, slog.LevelError, msg, extra, kv...)
}

func (s *slogLogger) Sync() error { return nil }

// for skipping past the logger frames
func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	if n := runtime.Callers(skip, pcs[:]); n == 0 {
		return 0
	}
	return pcs[0]
}

func kvAttrs(kv []any) []slog.Attr {
	out := make([]slog.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			out = append(out, slog.Any(k, kv[i+1]))
		}
	}
	return out
}

func (s *slogLogger) logWithPC(ctx context.Context, lvl slog.Level, msg string, extra []slog.Attr, kv ...any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.h.Enabled(ctx, lvl) {
		return
	}
	// runtime.Callers, callerPC, logWithPC, Debug/Info/Warn/Error
	const skip = 4
	r := slog.NewRecord(time.Now(), lvl, "["+s.ns+"] "+msg, callerPC(skip))

	// precedence: root < With < sticky < call site
	r.AddAttrs(s.root...)
	r.AddAttrs(s.attrs...)
	r.AddAttrs(s.sticky.snapshot()...)
	r.AddAttrs(kvAttrs(kv)...)
	r.AddAttrs(extra...)
	_ = s.h.Handle(ctx, r)
}

type stickyContext struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

func (c *stickyContext) set(add []slog.Attr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range add {
		replaced := false
		for i := range c.attrs {
			if c.attrs[i].Key == a.Key {
				c.attrs[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			c.attrs = append(c.attrs, a)
		}
	}
}

func (c *stickyContext) clear() {
	c.mu.Lock()
	c.attrs = nil
	c.mu.Unlock()
}

func (c *stickyContext) snapshot() []slog.Attr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.attrs) == 0 {
		return nil
	}
	out := make([]slog.Attr, len(c.attrs))
	copy(out, c.attrs)
	return out
}

func (c *stickyContext) clone() *stickyContext {
	return &stickyContext{attrs: c.snapshot()}
}

// for otel enrichment
type otelHandler struct{ next slog.Handler }

func (h otelHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}
func (h otelHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.next.Handle(ctx, r)
}
func (h otelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return otelHandler{next: h.next.WithAttrs(attrs)}
}
func (h otelHandler) WithGroup(name string) slog.Handler {
	return otelHandler{next: h.next.WithGroup(name)}
}
