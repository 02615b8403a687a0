// Package xerrors wraps errors with caller locations and a coarse Kind
// that HTTP handlers translate into status codes.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }
func (s *stacked) IsXerrorsWrapper()   {}

// stackHolder is satisfied by any error in a chain that carries PCs.
type stackHolder interface{ StackPCs() []uintptr }

// skip 0 starts the stack at stackAt's caller.
func stackAt(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func withStackSkip(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: stackAt(skip + 1)}
}

// WithStack records the caller's stack on err.
func WithStack(err error) error { return withStackSkip(err, 1) }

// EnsureTrace is WithStack unless something in the chain already holds a stack.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	if HasStack(err) {
		return err
	}
	return withStackSkip(err, 1)
}

// HasStack reports whether any error in the chain carries captured PCs.
func HasStack(err error) bool {
	var sh stackHolder
	return errors.As(err, &sh) && len(sh.StackPCs()) > 0
}

// New returns an error with the caller's stack attached.
func New(msg string) error { return withStackSkip(errors.New(msg), 1) }

// Newf is New with formatting. %w is honored.
func Newf(format string, args ...any) error {
	return withStackSkip(fmt.Errorf(format, args...), 1)
}
