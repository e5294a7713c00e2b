package log

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

type named interface{ Name() string }

// errorName prefers an explicit Name() anywhere in the chain, then the first
// non-wrapper type.
func errorName(err error) string {
	var n named
	if errors.As(err, &n) && n != nil {
		if name := n.Name(); name != "" {
			return name
		}
	}
	surface, _ := classifyTypes(err)
	return surface
}

func classifyTypes(err error) (surface, root string) {
	if err == nil {
		return "", ""
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		t := reflect.TypeOf(e)
		if t == nil {
			continue
		}
		u := t
		for u.Kind() == reflect.Ptr {
			u = u.Elem()
		}
		pkg, name := u.PkgPath(), u.Name()
		if strings.HasSuffix(pkg, "/internal/xerrors") && name != "PanicError" {
			continue
		}
		if pkg == "fmt" && name == "wrapError" {
			continue
		}
		surface = t.String()
		break
	}
	if surface == "" {
		surface = fmt.Sprintf("%T", err)
	}

	var last error
	for e := err; e != nil; e = errors.Unwrap(e) {
		last = e
	}
	root = fmt.Sprintf("%T", last)
	return surface, root
}

func errorChain(err error) []string {
	out := make([]string, 0, 8)
	var prev string
	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := e.Error()
		if msg != prev {
			out = append(out, msg)
			prev = msg
		}
	}

	// errors.Join
	type multi interface{ Unwrap() []error }
	if m, ok := err.(multi); ok { //nolint:errorlint // only the top level is a join
		for _, e := range m.Unwrap() {
			if s := e.Error(); s != prev {
				out = append(out, s)
				prev = s
			}
		}
	}
	return out
}
