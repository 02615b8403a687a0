package objstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/keithlinneman/themehub/internal/xerrors"
)

// flakyStore fails the first n calls of every operation.
type flakyStore struct {
	*MemoryStore
	failures int
	calls    int
	err      error
}

func (f *flakyStore) fail() error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyStore) Copy(ctx context.Context, bucket, src, dst string) (ObjectInfo, error) {
	if err := f.fail(); err != nil {
		return ObjectInfo{}, err
	}
	return f.MemoryStore.Copy(ctx, bucket, src, dst)
}

func (f *flakyStore) Put(ctx context.Context, bucket, key string, r io.Reader, ct string) error {
	if err := f.fail(); err != nil {
		// drain like a real transport would before failing
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return f.MemoryStore.Put(ctx, bucket, key, r, ct)
}

func fastPolicy(n int) RetryPolicy {
	return RetryPolicy{MaxRetries: n, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, BackoffMultiplier: 2}
}

func TestRetryStore_RetriesTransient(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failures: 2, err: errors.New("503 backend error")}
	seed(t, inner.MemoryStore, "b", "k")
	s := NewRetryStore(inner, fastPolicy(3), nil)

	if _, err := s.Copy(context.Background(), "b", "k", "k2"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryStore_GivesUp(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failures: 10, err: errors.New("timeout")}
	s := NewRetryStore(inner, fastPolicy(2), nil)

	_, err := s.Copy(context.Background(), "b", "k", "k2")
	if err == nil || !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Fatalf("err = %v", err)
	}
}

func TestRetryStore_PermanentNotRetried(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failures: 10, err: xerrors.NotFound("gone")}
	s := NewRetryStore(inner, fastPolicy(5), nil)

	_, err := s.Copy(context.Background(), "b", "k", "k2")
	if !xerrors.Is(err, xerrors.KindNotFound) || inner.calls != 1 {
		t.Fatalf("err = %v, calls = %d", err, inner.calls)
	}
}

func TestRetryStore_PutRewindsBody(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failures: 1, err: errors.New("reset")}
	s := NewRetryStore(inner, fastPolicy(1), nil)

	if err := s.Put(context.Background(), "b", "k", strings.NewReader("payload"), "text/plain"); err != nil {
		t.Fatal(err)
	}
	if data, _ := inner.Get("b", "k"); string(data) != "payload" {
		t.Fatalf("stored %q, body was not rewound", data)
	}
}

func TestRetryStore_ZeroRetriesKeepsError(t *testing.T) {
	boom := errors.New("boom")
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failures: 1, err: boom}
	s := NewRetryStore(inner, fastPolicy(0), nil)
	if _, err := s.Copy(context.Background(), "b", "k", "k2"); err != boom {
		t.Fatalf("err = %v, want the original error", err)
	}
}
