package xerrors

import (
	"errors"
	"runtime"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

// stackContains checks if any frame in pcs contains the given function name substring.
func stackContains(pcs []uintptr, substr string) bool {
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if strings.Contains(fr.Function, substr) {
			return true
		}
		if !more {
			break
		}
	}
	return false
}

func TestNew_MessageAndStack(t *testing.T) {
	err := New("something broke")
	if err.Error() != "something broke" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !stackContains(StackPCs(err), "TestNew_MessageAndStack") {
		t.Fatal("stack should contain calling function")
	}
}

func TestNewf_FormatsMessage(t *testing.T) {
	err := Newf("invalid port %d for %s", 99999, "server")
	want := "invalid port 99999 for server"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if len(StackPCs(err)) == 0 {
		t.Fatal("Newf should record a stack")
	}
}

func TestNilPassthrough(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"WithStack", func() error { return WithStack(nil) }},
		{"EnsureTrace", func() error { return EnsureTrace(nil) }},
		{"Wrap", func() error { return Wrap(nil, "ctx") }},
		{"Wrapf", func() error { return Wrapf(nil, "ctx %d", 1) }},
		{"Recovered", func() error { return Recovered(nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("got %v, want nil", err)
			}
		})
	}
}

func TestWithStack_PreservesMessageAndUnwraps(t *testing.T) {
	err := WithStack(errSentinel)
	if err.Error() != "sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("should unwrap to sentinel")
	}
	if len(StackPCs(err)) == 0 {
		t.Fatal("stack should be non-empty")
	}
}

func TestWrap_MessageChain(t *testing.T) {
	base := errors.New("eof")
	w1 := Wrap(base, "read body")
	w2 := Wrapf(w1, "handle %s", "request")

	if got, want := w2.Error(), "handle request: read body: eof"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(w2, base) {
		t.Fatal("should unwrap through full chain")
	}

	pc1 := w1.(*wrap).PC() //nolint:errorlint // internal type
	pc2 := w2.(*wrap).PC() //nolint:errorlint // internal type
	if pc1 == 0 || pc2 == 0 || pc1 == pc2 {
		t.Fatalf("PCs should be non-zero and distinct: %d %d", pc1, pc2)
	}
}

func TestWrap_HasNoFullStack(t *testing.T) {
	if pcs := StackPCs(Wrap(errSentinel, "ctx")); pcs != nil {
		t.Fatalf("Wrap should only record a PC, got %d frames", len(pcs))
	}
}

func TestEnsureTrace(t *testing.T) {
	t.Run("adds stack to plain error", func(t *testing.T) {
		err := EnsureTrace(errSentinel)
		if len(StackPCs(err)) == 0 {
			t.Fatal("expected stack")
		}
		if !errors.Is(err, errSentinel) {
			t.Fatal("should unwrap to sentinel")
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		first := New("already traced")
		if got := EnsureTrace(first); got != first { //nolint:errorlint // identity
			t.Fatal("EnsureTrace should return same error if already stacked")
		}
	})

	t.Run("stack found through wrap", func(t *testing.T) {
		inner := New("inner")
		outer := Wrap(inner, "outer")
		if got := EnsureTrace(outer); got != outer { //nolint:errorlint // identity
			t.Fatal("EnsureTrace should see stack below a wrap")
		}
	})
}

func TestCallers_ContainsCaller(t *testing.T) {
	pcs := Callers(0)
	if !stackContains(pcs, "TestCallers_ContainsCaller") {
		t.Fatal("stack should contain calling function")
	}
}

func TestStack_Render(t *testing.T) {
	err := New("boom")
	s := Stack(err)
	if !strings.Contains(s, "TestStack_Render") {
		t.Fatalf("rendered stack missing caller:\n%s", s)
	}
	if !strings.Contains(s, "xerrors_test.go:") {
		t.Fatalf("rendered stack missing file:line:\n%s", s)
	}
	if strings.Contains(s, "runtime.") {
		t.Fatalf("runtime frames should be dropped:\n%s", s)
	}
}

func TestStack_EmptyWithoutCapture(t *testing.T) {
	if s := Stack(errSentinel); s != "" {
		t.Fatalf("Stack = %q, want empty", s)
	}
	if s := RenderPCs(nil); s != "" {
		t.Fatalf("RenderPCs(nil) = %q, want empty", s)
	}
}

func TestRecovered(t *testing.T) {
	var err error
	func() {
		defer func() { err = Recovered(recover()) }()
		panicHere()
	}()

	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("want *PanicError, got %T", err)
	}
	if pe.Error() != "kaboom" {
		t.Fatalf("Error() = %q", pe.Error())
	}
	if pe.Name() != "PanicError" {
		t.Fatalf("Name() = %q", pe.Name())
	}
	if !stackContains(pe.StackPCs(), "panicHere") {
		t.Fatal("stack should include the panicking frame")
	}
}

func TestRecovered_ErrorValueUnwraps(t *testing.T) {
	err := Recovered(errSentinel)
	if !errors.Is(err, errSentinel) {
		t.Fatal("panic with error value should unwrap to it")
	}
}

func panicHere() { panic("kaboom") }
