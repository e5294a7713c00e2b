package log

import (
	"context"
	"io"
)

// Logger is the logging facade handed to every component. Implementations
// are safe for concurrent use.
type Logger interface {
	// With returns a logger whose entries carry kv in their context. The new
	// logger starts with a copy of the receiver's sticky context.
	With(kv ...any) Logger
	// Child returns a logger in namespace "<parent>:<name>" with an empty
	// sticky context.
	Child(name string) Logger
	Namespace() string

	// SetContext merges kv into the sticky context added to every later entry.
	SetContext(kv ...any)
	ClearContext()

	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, err error, msg string, kv ...any)

	Sync() error
}

const DefaultNamespace = "SERVER"

type Options struct {
	// Namespace prefixes every message as "[Namespace] msg".
	Namespace string
	// Development enables debug entries and indented output.
	Development bool
	// StackTraces adds error.stack to entries logged through Error.
	StackTraces bool
	// AddSource adds the calling file:line as "caller".
	AddSource bool

	App     string
	Version string
	Commit  string

	// Writer receives DEBUG and INFO entries, ErrWriter WARN and ERROR.
	// Defaults are os.Stdout and os.Stderr.
	Writer    io.Writer
	ErrWriter io.Writer
}

func New(opts Options) (Logger, error) { return newSlog(opts) }
