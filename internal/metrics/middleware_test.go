package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
)

func routed(m *ServerMetrics) http.Handler {
	r := chi.NewRouter()
	r.Get("/currfolders/{bucket}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})
	r.Post("/setTheme/{bucket}/{folder}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return m.Middleware(r)
}

func TestMiddleware_RouteLabels(t *testing.T) {
	m := New()
	h := routed(m)
	for _, p := range []string{"/currfolders/site-a", "/currfolders/site-b"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	got := counterValue(t, m, "http_requests_total", map[string]string{
		"method": "GET", "route": "/currfolders/{bucket}", "status": "200",
	})
	if got != 2 {
		t.Errorf("requests for pattern = %v, want 2", got)
	}
}

func TestMiddleware_Unmatched(t *testing.T) {
	m := New()
	routed(m).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/site-a", nil))
	if got := counterValue(t, m, "http_requests_total", map[string]string{"route": unmatchedRoute, "status": "404"}); got != 1 {
		t.Errorf("unmatched = %v, want 1", got)
	}
	if got := counterValue(t, m, "http_requests_total", map[string]string{"route": "/nope/site-a"}); got != 0 {
		t.Error("raw path leaked into route label")
	}
}

func TestMiddleware_ErrorCounter(t *testing.T) {
	m := New()
	h := routed(m)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/setTheme/b/t", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/currfolders/b", nil))
	if got := counterValue(t, m, "http_errors_total", nil); got != 1 {
		t.Errorf("http_errors_total = %v, want 1", got)
	}
}

func TestMiddleware_InflightReturnsToZero(t *testing.T) {
	m := New()
	var during float64
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = gather(t, m, "http_inflight_requests").GetMetric()[0].GetGauge().GetValue()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	after := gather(t, m, "http_inflight_requests").GetMetric()[0].GetGauge().GetValue()
	if during != 1 || after != 0 {
		t.Errorf("inflight during=%v after=%v", during, after)
	}
}

func TestMiddleware_ResponseSize(t *testing.T) {
	m := New()
	routed(m).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/currfolders/b", nil))
	mf := gather(t, m, "http_response_size_bytes")
	if mf == nil || mf.GetMetric()[0].GetHistogram().GetSampleSum() != 2 {
		t.Errorf("response size = %v, want 2 bytes", mf)
	}
}

func TestTraceExemplar(t *testing.T) {
	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")

	sampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled,
	}))
	if ex := traceExemplar(sampled); ex["trace_id"] != tid.String() {
		t.Errorf("exemplar = %v", ex)
	}

	unsampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid, SpanID: sid,
	}))
	if ex := traceExemplar(unsampled); ex != nil {
		t.Errorf("unsampled exemplar = %v", ex)
	}
	if ex := traceExemplar(context.Background()); ex != nil {
		t.Errorf("no-trace exemplar = %v", ex)
	}
}
