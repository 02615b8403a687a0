package xerrors

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for callers that must map failures onto a
// protocol status, such as the HTTP layer.
type Kind uint8

const (
	KindInternal Kind = iota
	KindInvalid
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

type kinded struct {
	err  error
	kind Kind
}

func (k *kinded) Error() string     { return k.err.Error() }
func (k *kinded) Unwrap() error     { return k.err }
func (k *kinded) Kind() Kind        { return k.kind }
func (k *kinded) IsXerrorsWrapper() {}

// WithKind tags err with kind. The outermost tag in a chain wins.
func WithKind(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &kinded{err: err, kind: kind}
}

// KindOf returns the outermost Kind in err's chain. Context cancellation
// and deadline errors report KindUnavailable; untagged errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUnavailable
	}
	return KindInternal
}

// Is reports whether err is tagged with kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func newKind(kind Kind, format string, args []any) error {
	return &kinded{err: withStackSkip(fmt.Errorf(format, args...), 2), kind: kind}
}

func NotFound(format string, args ...any) error { return newKind(KindNotFound, format, args) }
func Conflict(format string, args ...any) error { return newKind(KindConflict, format, args) }
func Invalid(format string, args ...any) error  { return newKind(KindInvalid, format, args) }

func Unauthorized(format string, args ...any) error {
	return newKind(KindUnauthorized, format, args)
}

func Forbidden(format string, args ...any) error {
	return newKind(KindForbidden, format, args)
}

// Message returns the text of the error that carries err's Kind, without
// the context wrapped around it. It is safe to show to API clients for
// every kind but KindInternal.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var k *kinded
	if errors.As(err, &k) {
		return k.err.Error()
	}
	return err.Error()
}
