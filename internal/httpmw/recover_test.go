package httpmw

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/keithlinneman/themehub/internal/log"
)

// spyLogger records Error calls.
type spyLogger struct {
	log.Logger
	mu     sync.Mutex
	errors []error
}

func newSpyLogger() *spyLogger { return &spyLogger{Logger: log.Nop()} }

func (s *spyLogger) With(...any) log.Logger { return s }

func (s *spyLogger) Error(_ context.Context, err error, _ string, _ ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}

func (s *spyLogger) logged() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errors...)
}

func TestRecover_NoPanic(t *testing.T) {
	spy := newSpyLogger()
	h := Recover(spy, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
	if len(spy.logged()) != 0 {
		t.Error("logged an error without a panic")
	}
}

func TestRecover_Panic(t *testing.T) {
	for name, v := range map[string]any{
		"string": "something broke",
		"error":  errors.New("something broke"),
	} {
		t.Run(name, func(t *testing.T) {
			spy := newSpyLogger()
			calls := 0
			h := RequestID("")(Recover(spy, func() { calls++ })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic(v)
			})))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(DefaultRequestIDHeader, "rid-9")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("body: %v", err)
			}
			if body["request_id"] != "rid-9" || strings.Contains(rec.Body.String(), "something broke") {
				t.Errorf("body = %v", body)
			}
			errs := spy.logged()
			if len(errs) != 1 || !strings.Contains(errs[0].Error(), "something broke") {
				t.Errorf("logged = %v", errs)
			}
			if calls != 1 {
				t.Errorf("onPanic calls = %d, want 1", calls)
			}
		})
	}
}

func TestRecover_AbortHandlerPassesThrough(t *testing.T) {
	spy := newSpyLogger()
	h := Recover(spy, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", v)
		}
		if len(spy.logged()) != 0 {
			t.Error("abort was logged as an error")
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
