package opshttp

import (
	"net"
	"net/http"
	"net/http/pprof"
)

// RegisterPprof mounts the pprof handlers under /debug/pprof/, reachable
// only from loopback and private addresses.
func RegisterPprof(mux *http.ServeMux) {
	mux.Handle("/debug/pprof/", requireNonPublicNetwork(http.HandlerFunc(pprof.Index)))
	mux.Handle("/debug/pprof/cmdline", requireNonPublicNetwork(http.HandlerFunc(pprof.Cmdline)))
	mux.Handle("/debug/pprof/profile", requireNonPublicNetwork(http.HandlerFunc(pprof.Profile)))
	mux.Handle("/debug/pprof/symbol", requireNonPublicNetwork(http.HandlerFunc(pprof.Symbol)))
	mux.Handle("/debug/pprof/trace", requireNonPublicNetwork(http.HandlerFunc(pprof.Trace)))
}

// requireNonPublicNetwork answers 404 to peers outside loopback and
// private ranges. The admin port should not be exposed at all; this
// covers a misconfigured security group.
func requireNonPublicNetwork(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !(ip.IsLoopback() || ip.IsPrivate()) {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
