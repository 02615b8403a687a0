package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFixed(t *testing.T) {
	if err := Fixed(true, "ignored").Check(context.Background()); err != nil {
		t.Errorf("Fixed(true) = %v", err)
	}
	if err := Fixed(false, "db down").Check(context.Background()); err == nil || err.Error() != "db down" {
		t.Errorf("Fixed(false, db down) = %v", err)
	}
	if err := Fixed(false, "").Check(context.Background()); err == nil || err.Error() != "unhealthy" {
		t.Errorf("Fixed(false, \"\") = %v", err)
	}
}

func TestAll(t *testing.T) {
	calls := 0
	counting := CheckFunc(func(context.Context) error { calls++; return nil })
	ctx := context.Background()

	if err := All().Check(ctx); err != nil {
		t.Errorf("empty All = %v", err)
	}
	if err := All(nil, counting, Fixed(true, "")).Check(ctx); err != nil || calls != 1 {
		t.Errorf("All pass = %v, calls %d", err, calls)
	}
	err := All(Fixed(false, "first"), counting, Fixed(false, "second")).Check(ctx)
	if err == nil || err.Error() != "first" {
		t.Errorf("All fail = %v, want first", err)
	}
	if calls != 1 {
		t.Errorf("All did not stop at the first failure (calls %d)", calls)
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPing(t *testing.T) {
	ok := Ping("records", pingFunc(func(context.Context) error { return nil }), time.Second)
	if err := ok.Check(context.Background()); err != nil {
		t.Errorf("Ping ok = %v", err)
	}

	slow := Ping("records", pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), 10*time.Millisecond)
	err := slow.Check(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) || !strings.HasPrefix(err.Error(), "records") {
		t.Errorf("slow Ping = %v, want records: deadline exceeded", err)
	}
}

func TestShutdownGate(t *testing.T) {
	var g ShutdownGate
	ctx := context.Background()
	if err := g.Probe().Check(ctx); err != nil || g.Draining() {
		t.Fatalf("new gate = %v, draining %v", err, g.Draining())
	}
	g.Set("")
	if err := g.Probe().Check(ctx); err == nil || err.Error() != "draining" {
		t.Errorf("Set(\"\") = %v", err)
	}
	g.Set("shutting down")
	if err := g.Probe().Check(ctx); err == nil || err.Error() != "shutting down" {
		t.Errorf("Set(reason) = %v", err)
	}
	g.Clear()
	if err := g.Probe().Check(ctx); err != nil {
		t.Errorf("after Clear = %v", err)
	}
}

func TestShutdownGate_Concurrent(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); g.Set("drain") }()
		go func() { defer wg.Done(); _ = p.Check(context.Background()) }()
	}
	wg.Wait()
	if p.Check(context.Background()) == nil {
		t.Error("gate open after concurrent Set")
	}
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name     string
		h        http.HandlerFunc
		wantCode int
		wantBody string
	}{
		{"healthy", HealthzHandler(Fixed(true, "")), http.StatusOK, "ok\n"},
		{"nil probe", ReadyzHandler(nil), http.StatusOK, "ready\n"},
		{"not ready", ReadyzHandler(Fixed(false, "records: ping mongo")), http.StatusServiceUnavailable, "records: ping mongo\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/ready", nil))
			if rec.Code != tt.wantCode || rec.Body.String() != tt.wantBody {
				t.Errorf("got %d %q, want %d %q", rec.Code, rec.Body.String(), tt.wantCode, tt.wantBody)
			}
			if rec.Header().Get("Cache-Control") != "no-store" {
				t.Error("probe response is cacheable")
			}
		})
	}
}
