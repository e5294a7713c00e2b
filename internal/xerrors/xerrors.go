// Package xerrors attaches call stacks to errors so the logger and the HTTP
// error boundary can report where a failure was produced.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// StackTracer is implemented by errors carrying program counters captured at
// construction time.
type StackTracer interface {
	StackPCs() []uintptr
}

type withStack struct {
	err error
	pcs []uintptr
}

func (w *withStack) Error() string       { return w.err.Error() }
func (w *withStack) Unwrap() error       { return w.err }
func (w *withStack) StackPCs() []uintptr { return w.pcs }

const maxDepth = 64

// Callers returns the program counters of the calling goroutine, skipping
// skip frames above the caller of Callers.
func Callers(skip int) []uintptr {
	pcs := make([]uintptr, maxDepth)
	// 2 skips runtime.Callers and Callers itself
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func withStackSkip(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &withStack{err: err, pcs: Callers(skip)}
}

func New(msg string) error             { return withStackSkip(errors.New(msg), 2) }
func Newf(f string, args ...any) error { return withStackSkip(fmt.Errorf(f, args...), 2) }

// WithStack records the caller's stack on err. nil stays nil.
func WithStack(err error) error { return withStackSkip(err, 2) }

// EnsureTrace adds a stack only when no error in the chain has one yet.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	if len(StackPCs(err)) > 0 {
		return err
	}
	return withStackSkip(err, 2)
}

// StackPCs returns the outermost stack recorded in err's chain, or nil.
func StackPCs(err error) []uintptr {
	var st StackTracer
	if errors.As(err, &st) && st != nil {
		return st.StackPCs()
	}
	return nil
}

type wrap struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrap) Error() string { return w.msg + ": " + w.err.Error() }
func (w *wrap) Unwrap() error { return w.err }
func (w *wrap) PC() uintptr   { return w.pc }

func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	if n := runtime.Callers(2+skip, pcs[:]); n == 0 {
		return 0
	}
	return pcs[0]
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: msg, pc: callerPC(1)}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: fmt.Sprintf(format, args...), pc: callerPC(1)}
}

// PanicError is a recovered panic value converted to an error.
type PanicError struct {
	Value any
	pcs   []uintptr
}

func (p *PanicError) Error() string {
	if err, ok := p.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(p.Value)
}

func (p *PanicError) Unwrap() error {
	err, _ := p.Value.(error)
	return err
}

func (p *PanicError) StackPCs() []uintptr { return p.pcs }
func (p *PanicError) Name() string        { return "PanicError" }

// Recovered converts a value returned by recover() into an error with the
// stack of the deferred call, which still includes the panicking frames.
func Recovered(v any) error {
	if v == nil {
		return nil
	}
	return &PanicError{Value: v, pcs: Callers(1)}
}
