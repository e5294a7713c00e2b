package xerrors

import (
	"runtime"
	"strconv"
	"strings"
)

// Frame is a resolved stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

func (f Frame) String() string {
	return f.Function + "\n\t" + f.File + ":" + strconv.Itoa(f.Line)
}

// Frames resolves pcs, dropping runtime internals so panics start at the
// user frame.
func Frames(pcs []uintptr) []Frame {
	if len(pcs) == 0 {
		return nil
	}
	out := make([]Frame, 0, len(pcs))
	it := runtime.CallersFrames(pcs)
	for {
		fr, more := it.Next()
		if fr.Function != "" && !strings.HasPrefix(fr.Function, "runtime.") {
			out = append(out, Frame{Function: fr.Function, File: fr.File, Line: fr.Line})
		}
		if !more {
			break
		}
	}
	return out
}

// Stack renders the stack recorded in err's chain, one frame per two lines in
// the same layout as runtime/debug.Stack. Empty when no stack was recorded.
func Stack(err error) string {
	return RenderPCs(StackPCs(err))
}

func RenderPCs(pcs []uintptr) string {
	frames := Frames(pcs)
	if len(frames) == 0 {
		return ""
	}
	var b strings.Builder
	for i, f := range frames {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.String())
	}
	return b.String()
}
