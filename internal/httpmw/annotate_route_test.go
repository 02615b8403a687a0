package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestAnnotateHTTPRoute(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })

	r := chi.NewRouter()
	r.Use(AnnotateHTTPRoute)
	r.Get("/currfolders/{bucket}/{folder}", func(w http.ResponseWriter, r *http.Request) {})

	// start the server span the way otelhttp does, outside the router
	h := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx, span := tp.Tracer("test").Start(req.Context(), "GET")
		defer span.End()
		r.ServeHTTP(w, req.WithContext(ctx))
	})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/currfolders/site-a/theme1", nil))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if got, want := spans[0].Name(), "GET /currfolders/{bucket}/{folder}"; got != want {
		t.Errorf("span name = %q, want %q", got, want)
	}
	found := false
	for _, kv := range spans[0].Attributes() {
		if kv.Key == attribute.Key("http.route") && kv.Value.AsString() == "/currfolders/{bucket}/{folder}" {
			found = true
		}
	}
	if !found {
		t.Errorf("http.route attribute missing: %v", spans[0].Attributes())
	}
}
