package health

import (
	"context"
	"sync/atomic"

	"github.com/keithlinneman/themehub/internal/xerrors"
)

// ShutdownGate turns readiness off during drain.
type ShutdownGate struct {
	draining atomic.Bool
	reason   atomic.Value
}

// Set starts draining. An empty reason reports "draining".
func (g *ShutdownGate) Set(reason string) {
	g.reason.Store(reason)
	g.draining.Store(true)
}

func (g *ShutdownGate) Clear() {
	g.draining.Store(false)
	g.reason.Store("")
}

func (g *ShutdownGate) Draining() bool { return g.draining.Load() }

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		if !g.draining.Load() {
			return nil
		}
		r, _ := g.reason.Load().(string)
		if r == "" {
			r = "draining"
		}
		return xerrors.New(r)
	}
}
