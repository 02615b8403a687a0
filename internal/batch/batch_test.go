package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRun_AllItemsReported(t *testing.T) {
	items := []string{"a.css", "b.js", "c.png", "d.html"}
	res := Run(context.Background(), items, 2, func(_ context.Context, s string) error {
		if strings.HasSuffix(s, ".js") || strings.HasSuffix(s, ".png") {
			return fmt.Errorf("copy %s failed", s)
		}
		return nil
	})

	if len(res) != len(items) {
		t.Fatalf("len = %d", len(res))
	}
	for i, r := range res {
		if r.Index != i || r.Item != items[i] {
			t.Fatalf("result %d = %+v, want input order", i, r)
		}
	}
	if res.Succeeded() != 2 {
		t.Fatalf("Succeeded = %d", res.Succeeded())
	}
	failed := res.Failed()
	if len(failed) != 2 || failed[0].Item != "b.js" || failed[1].Item != "c.png" {
		t.Fatalf("Failed = %+v", failed)
	}
	if err := res.Err(); err == nil || !strings.Contains(err.Error(), "total 2 error(s)") {
		t.Fatalf("Err = %v", err)
	}
}

func TestRun_SingleFailureUnchanged(t *testing.T) {
	boom := errors.New("boom")
	res := Run(context.Background(), []int{1, 2, 3}, 0, func(_ context.Context, n int) error {
		if n == 2 {
			return boom
		}
		return nil
	})
	if res.Err() != boom {
		t.Fatalf("Err = %v, want boom", res.Err())
	}
}

func TestRun_NoItems(t *testing.T) {
	res := Run(context.Background(), nil, 4, func(context.Context, int) error { return nil })
	if len(res) != 0 || res.Err() != nil {
		t.Fatalf("res = %+v", res)
	}
}

func TestRun_RespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	items := make([]int, 20)
	Run(context.Background(), items, 3, func(context.Context, int) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	if peak.Load() > 3 {
		t.Fatalf("peak concurrency = %d, limit 3", peak.Load())
	}
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Int32
	res := Run(ctx, []int{1, 2, 3}, 1, func(context.Context, int) error {
		ran.Add(1)
		return nil
	})
	if ran.Load() != 0 {
		t.Fatalf("fn ran %d times after cancel", ran.Load())
	}
	for _, r := range res {
		if !errors.Is(r.Err, context.Canceled) {
			t.Fatalf("result = %+v", r)
		}
	}
}
