package httpmw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func serveRequestID(t *testing.T, header, incoming string) (ctxID, respID string) {
	t.Helper()
	h := RequestID(header)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	name := header
	if name == "" {
		name = DefaultRequestIDHeader
	}
	if incoming != "" {
		req.Header.Set(name, incoming)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return ctxID, rec.Header().Get(name)
}

func TestRequestID_Generates(t *testing.T) {
	ctxID, respID := serveRequestID(t, "", "")
	if _, err := uuid.Parse(ctxID); err != nil {
		t.Fatalf("generated id %q is not a uuid: %v", ctxID, err)
	}
	if respID != ctxID {
		t.Errorf("response header = %q, context = %q", respID, ctxID)
	}
}

func TestRequestID_PropagatesValid(t *testing.T) {
	ctxID, respID := serveRequestID(t, "X-Correlation-Id", "abc-123")
	if ctxID != "abc-123" || respID != "abc-123" {
		t.Errorf("got ctx=%q resp=%q, want abc-123", ctxID, respID)
	}
}

func TestRequestID_ReplacesMalformed(t *testing.T) {
	for _, in := range []string{"has space", "line\nbreak", strings.Repeat("a", maxRequestIDLen+1)} {
		ctxID, _ := serveRequestID(t, "", in)
		if ctxID == in {
			t.Errorf("malformed id %q was propagated", in)
		}
		if _, err := uuid.Parse(ctxID); err != nil {
			t.Errorf("replacement for %q is not a uuid: %q", in, ctxID)
		}
	}
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := RequestIDFromContext(req.Context()); got != "" {
		t.Errorf("got %q, want empty", got)
	}
	if ctx := WithRequestID(req.Context(), ""); RequestIDFromContext(ctx) != "" {
		t.Error("empty id should not be stored")
	}
}
