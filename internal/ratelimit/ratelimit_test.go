package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keithlinneman/themehub/internal/httpmw"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, opts ...Option) (*IPLimiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, append([]Option{withClock(clock.Now)}, opts...)...), clock
}

func TestAllow_BurstThenRefill(t *testing.T) {
	l, clock := newTestLimiter(t, WithRate(1, 3))
	for i := 0; i < 3; i++ {
		if !l.Allow("1.1.1.1") {
			t.Fatalf("request %d denied inside burst", i+1)
		}
	}
	if l.Allow("1.1.1.1") {
		t.Fatal("request past burst allowed")
	}
	if !l.Allow("2.2.2.2") {
		t.Fatal("other ip shares the bucket")
	}
	clock.Advance(time.Second)
	if !l.Allow("1.1.1.1") {
		t.Fatal("no token after refill")
	}
}

func TestAllow_Hooks(t *testing.T) {
	var first, denied []string
	l, _ := newTestLimiter(t,
		WithRate(0.001, 1),
		WithOnFirstDenied(func(ip string) { first = append(first, ip) }),
		WithOnDenied(func(ip string) { denied = append(denied, ip) }),
	)
	l.Allow("a")
	l.Allow("a")
	l.Allow("a")
	if len(first) != 1 || len(denied) != 2 {
		t.Errorf("first=%v denied=%v, want one first denial and two denials", first, denied)
	}
}

func TestAllow_Capacity(t *testing.T) {
	var full atomic.Int32
	l, _ := newTestLimiter(t, WithMaxVisitors(2), WithOnCapacity(func() { full.Add(1) }))
	l.Allow("a")
	l.Allow("b")
	if l.Allow("c") {
		t.Fatal("new ip allowed past capacity")
	}
	if !l.Allow("a") {
		t.Fatal("known ip denied at capacity")
	}
	if full.Load() != 1 || l.Len() != 2 {
		t.Errorf("capacity hits=%d len=%d", full.Load(), l.Len())
	}
}

func TestEvict(t *testing.T) {
	l, clock := newTestLimiter(t, WithTTL(time.Minute))
	l.Allow("old")
	clock.Advance(50 * time.Second)
	l.Allow("new")
	clock.Advance(20 * time.Second)
	l.evict(clock.Now())
	if l.Len() != 1 {
		t.Fatalf("len = %d, want 1", l.Len())
	}
	if _, ok := l.visitors["new"]; !ok {
		t.Error("recent visitor evicted")
	}
}

func TestMiddleware(t *testing.T) {
	l, _ := newTestLimiter(t, WithRate(0.5, 1))
	h := httpmw.ClientIP(l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	do := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		h.ServeHTTP(rec, req)
		return rec
	}
	if rec := do(); rec.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d", rec.Code)
	}
	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}
	if got := rec.Body.String(); got != "{\"error\":\"too many requests\"}\n" {
		t.Errorf("body = %q", got)
	}
}
