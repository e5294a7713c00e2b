package log

import (
	"context"
	"strconv"
	"time"
)

// Timer measures one labelled operation. The clock is monotonic.
type Timer struct {
	l     Logger
	label string
	start time.Time
}

func StartTimer(l Logger, label string) *Timer {
	if l == nil {
		l = Nop()
	}
	return &Timer{l: l, label: label, start: time.Now()}
}

// End logs "<label> took <n>ms" at debug and returns the elapsed milliseconds.
// It may be called more than once; each call measures from StartTimer.
func (t *Timer) End(ctx context.Context) float64 {
	ms := float64(time.Since(t.start)) / float64(time.Millisecond)
	t.l.Debug(ctx, t.label+" took "+strconv.FormatFloat(ms, 'f', 2, 64)+"ms", "duration", ms)
	return ms
}
