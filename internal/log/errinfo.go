package log

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

type pcHolder interface{ PC() uintptr }

type stackHolder interface{ StackPCs() []uintptr }

// plumbing reports frames that belong to logging or error wrapping rather
// than to the code that failed.
func plumbing(fn string) bool {
	return strings.HasPrefix(fn, "log/slog.") ||
		strings.Contains(fn, "/internal/log.") ||
		strings.Contains(fn, "/internal/xerrors.")
}

// renderStack prints func/file:line pairs from the first non-plumbing
// frame up to, but not including, the runtime.
func renderStack(pcs []uintptr) string {
	frames := runtime.CallersFrames(pcs)
	var b strings.Builder
	started := false
	for {
		fr, more := frames.Next()
		if strings.HasPrefix(fr.Function, "runtime.") {
			break
		}
		if !started && !plumbing(fr.Function) {
			started = true
		}
		if started {
			fmt.Fprintf(&b, "%s\n\t%s:%d\n", fr.Function, fr.File, fr.Line)
		}
		if !more {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

// errorChain lists each distinct message from outermost to root, then the
// members of a top-level errors.Join.
func errorChain(err error) []string {
	var out []string
	add := func(msg string) {
		if len(out) == 0 || out[len(out)-1] != msg {
			out = append(out, msg)
		}
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		add(e.Error())
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			add(e.Error())
		}
	}
	return out
}

type errorLink struct {
	Msg  string `json:"msg"`
	Func string `json:"func,omitempty"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

// errorLinks returns the outermost error plus every wrap that knows where
// it happened, at most max entries deep.
func errorLinks(err error, max int) []errorLink {
	var links []errorLink
	depth := 0
	for e := err; e != nil && depth < max; e = errors.Unwrap(e) {
		link := errorLink{Msg: e.Error()}
		var fr runtime.Frame
		switch x := e.(type) {
		case pcHolder:
			if x.PC() != 0 {
				fr, _ = runtime.CallersFrames([]uintptr{x.PC()}).Next()
			}
		case stackHolder:
			fr = firstAppFrame(x.StackPCs())
		}
		link.Func, link.File, link.Line = fr.Function, fr.File, fr.Line
		if depth == 0 || link.Func != "" {
			links = append(links, link)
		}
		depth++
	}
	return links
}

func firstAppFrame(pcs []uintptr) runtime.Frame {
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if fr.Function != "" && !strings.HasPrefix(fr.Function, "runtime.") && !plumbing(fr.Function) {
			return fr
		}
		if !more {
			return runtime.Frame{}
		}
	}
}

// errorTypes names the first non-wrapper type in the chain and the root's
// type.
func errorTypes(err error) (surface, root string) {
	var last error
	for e := err; e != nil; e = errors.Unwrap(e) {
		last = e
		if surface != "" {
			continue
		}
		t := reflect.TypeOf(e)
		u := t
		for u.Kind() == reflect.Pointer {
			u = u.Elem()
		}
		if strings.Contains(u.PkgPath(), "/internal/xerrors") {
			continue
		}
		if u.PkgPath() == "fmt" && u.Name() == "wrapError" {
			continue
		}
		surface = t.String()
	}
	if surface == "" {
		surface = fmt.Sprintf("%T", err)
	}
	return surface, fmt.Sprintf("%T", last)
}
