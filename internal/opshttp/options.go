package opshttp

import (
	"net/http"

	"github.com/keithlinneman/themehub/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// UseRecoverMW wraps the mux in httpmw.Recover; OnPanic runs for each
	// recovered panic
	UseRecoverMW bool
	OnPanic      func()
}
