package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/themehub/internal/health"
	"github.com/keithlinneman/themehub/internal/httpmw"
	"github.com/keithlinneman/themehub/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	Health       health.Probe
	Readiness    health.Probe
	ClientIPOpts httpmw.ClientIPOptions

	// CORSOrigins lists the dashboard origins allowed to call the API from
	// a browser. Empty disables CORS headers.
	CORSOrigins []string

	// MaxBodyBytes caps every request body; uploads are the largest.
	MaxBodyBytes int64

	// WriteTimeout must cover a whole swap. Zero uses DefaultWriteTimeout.
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// APIRoutes mounts the application routes.
	APIRoutes func(r chi.Router)
}
