package health

import (
	"context"
	"time"

	"github.com/keithlinneman/themehub/internal/xerrors"
)

// Probe is evaluated per request. nil means healthy; an error carries the
// reason.
type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed always passes, or always fails with reason.
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	return func(context.Context) error { return xerrors.New(reason) }
}

// All passes when every non-nil probe passes and returns the first error.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Pinger is a backend that can check its own connection, such as the
// record store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping probes p with at most timeout per check and prefixes failures with
// name.
func Ping(name string, p Pinger, timeout time.Duration) CheckFunc {
	return func(ctx context.Context) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := p.Ping(ctx); err != nil {
			return xerrors.Wrap(err, name)
		}
		return nil
	}
}
