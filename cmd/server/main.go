package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/themehub/internal/app"
	"github.com/keithlinneman/themehub/internal/auth"
	"github.com/keithlinneman/themehub/internal/cfg"
	"github.com/keithlinneman/themehub/internal/health"
	"github.com/keithlinneman/themehub/internal/httpserver"
	"github.com/keithlinneman/themehub/internal/log"
	"github.com/keithlinneman/themehub/internal/metrics"
	"github.com/keithlinneman/themehub/internal/opshttp"
	"github.com/keithlinneman/themehub/internal/otelx"
	"github.com/keithlinneman/themehub/internal/prof"
	"github.com/keithlinneman/themehub/internal/ratelimit"
	"github.com/keithlinneman/themehub/internal/records"
	"github.com/keithlinneman/themehub/internal/themehttp"
	"github.com/keithlinneman/themehub/internal/themes"
	"github.com/keithlinneman/themehub/internal/userhttp"
	"github.com/keithlinneman/themehub/internal/users"
	v "github.com/keithlinneman/themehub/internal/version"
	"github.com/keithlinneman/themehub/internal/websitehttp"
	"github.com/keithlinneman/themehub/internal/websites"
)

// multipart framing on top of the file itself
const uploadOverhead = 1 << 20

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		os.Exit(0)
	}

	// precedence: cli > env > config file > default
	cfg.FillFromEnv(flag.CommandLine, "THEMEHUB_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.LoadFile(flag.CommandLine, conf.ConfigFile); err != nil {
		fmt.Fprintln(os.Stderr, "config file error:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		stackLvl = lvl
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"store_backend", conf.StoreBackend,
		"records_backend", conf.RecordsBackend,
		"root_folder", conf.RootFolder,
		"current_folder", conf.CurrentFolder,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", &vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(err == nil && conf.EnablePyroscope)
	defer func() { stopProf() }()

	// the collector runs on localhost, so plaintext grpc
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, tracing disabled")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	awsCfg, err := app.LoadAWS(ctx, conf)
	if err != nil {
		L.Error(ctx, err, "failed to load AWS config")
		os.Exit(1)
	}

	secret, err := app.JWTSecret(ctx, conf, awsCfg)
	if err != nil {
		L.Error(ctx, err, "failed to resolve JWT secret")
		os.Exit(1)
	}
	tokens, err := auth.NewTokens(secret, conf.TokenTTL)
	if err != nil {
		L.Error(ctx, err, "invalid JWT secret")
		os.Exit(1)
	}

	store, closeStore, err := app.OpenObjectStore(ctx, conf, awsCfg, L, m)
	if err != nil {
		L.Error(ctx, err, "failed to open object store", "backend", conf.StoreBackend)
		os.Exit(1)
	}
	defer closeStore()

	recs, err := app.OpenRecords(ctx, conf)
	if err != nil {
		L.Error(ctx, err, "failed to open record store", "backend", conf.RecordsBackend)
		os.Exit(1)
	}
	defer func() {
		if err := recs.Close(context.Background()); err != nil {
			L.Error(context.Background(), err, "record store close")
		}
	}()

	themeSvc, err := themes.New(themes.Options{
		Store:           store,
		Records:         recs,
		Logger:          L.With("component", "themes"),
		RootFolder:      conf.RootFolder,
		CurrentFolder:   conf.CurrentFolder,
		PublicBaseURL:   conf.PublicBaseURL,
		Concurrency:     conf.StoreConcurrency,
		AllowEmptyTheme: conf.AllowEmptyTheme,
		SwapTimeout:     conf.SwapTimeout,
		Observer:        m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create theme service")
		os.Exit(1)
	}
	userSvc, err := users.New(users.Options{
		Store:              recs,
		Tokens:             tokens,
		Logger:             L.With("component", "users"),
		AllowOpenBootstrap: conf.AllowOpenBootstrap,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create user service")
		os.Exit(1)
	}
	siteSvc := websites.New(recs, L.With("component", "websites"))
	guard := auth.NewGuard(tokens, recs)

	// only the credential endpoints are rate limited
	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.AuthRateLimit, conf.AuthRateBurst),
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		// logged once per ip until it is evicted
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
		}),
	)

	themeAPI := themehttp.NewAPI(themeSvc, guard.RequireAdmin())
	userAPI := userhttp.NewAPI(userhttp.Options{
		Users:     userSvc,
		Guard:     guard,
		RateLimit: limiter.Middleware,
		Logins:    m,
	})
	siteAPI := websitehttp.NewAPI(siteSvc,
		guard.RequireRoles(records.RoleSuperAdmin, records.RoleAdmin, records.RoleUser),
		guard.RequireRoles(records.RoleSuperAdmin, records.RoleAdmin),
	)

	var gate health.ShutdownGate
	readiness := health.All(
		gate.Probe(),
		health.Ping("records", recs, 2*time.Second),
	)

	appHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		CORSOrigins:  conf.Origins(),
		MaxBodyBytes: conf.MaxUploadBytes + uploadOverhead,
		WriteTimeout: conf.SwapTimeout + time.Minute,
		APIRoutes: func(r chi.Router) {
			themeAPI.RegisterRoutes(r)
			userAPI.RegisterRoutes(r)
			siteAPI.RegisterRoutes(r)
		},
	})
	if err != nil {
		L.Error(ctx, err, "failed to start app http listener")
		os.Exit(1)
	}
	defer func() { _ = appHTTPStop(context.Background()) }()

	// the admin port is firewalled to monitoring; pprof also refuses public peers
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd not notified", "reason", err)
	}

	<-ctx.Done()
	stop()
	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so the load balancer stops routing here
	gate.Set("draining")
	if conf.DrainPeriod > 0 {
		L.Info(context.Background(), "draining", "period", conf.DrainPeriod)
		forceCh := make(chan os.Signal, 1)
		signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-time.After(conf.DrainPeriod):
		case <-forceCh:
			L.Warn(context.Background(), "second signal received, skipping drain")
		}
		signal.Stop(forceCh)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.DefaultShutdownTimeout)
	defer cancel()

	if err := appHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "app http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	L.Info(context.Background(), "shutdown complete")
}

func notifySystemd() error {
	// set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: dial: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify: write: %w", err)
	}
	return nil
}
