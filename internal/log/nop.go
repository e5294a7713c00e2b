package log

import "context"

// nopLogger implements Logger but does nothing for mock or testing
type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, kv ...any)           {}
func (nopLogger) Info(ctx context.Context, msg string, kv ...any)            {}
func (nopLogger) Warn(ctx context.Context, msg string, kv ...any)            {}
func (nopLogger) Error(ctx context.Context, err error, msg string, kv ...any) {}
func (nopLogger) SetContext(kv ...any)                                       {}
func (nopLogger) ClearContext()                                              {}
func (nopLogger) Namespace() string                                          { return "" }
func (nopLogger) Sync() error                                                { return nil }

func (n nopLogger) With(kv ...any) Logger    { return n }
func (n nopLogger) Child(name string) Logger { return n }

// Nop returns a no-op Logger.
func Nop() Logger { return nopLogger{} }
