// Package httpmw holds the middleware of the public API listener.
//
// httpserver.NewHandler composes them outermost first: security headers,
// panic recovery, request id, client ip, tracing, trace response headers,
// metrics, request scoped logger, body limit, access log and the chi
// router. Request bodies, query values and auth headers are never logged.
package httpmw
