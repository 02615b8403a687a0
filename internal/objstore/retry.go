package objstore

import (
	"context"
	"io"
	"time"

	"github.com/keithlinneman/themehub/internal/log"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

// RetryPolicy configures retry behavior for store operations.
type RetryPolicy struct {
	// MaxRetries is the maximum number of retry attempts (0 means no retries).
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryPolicy returns the backoff used when only a retry count is
// configured.
func DefaultRetryPolicy(retries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:        retries,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryStore wraps a Store with retry logic and exponential backoff.
// Errors a retry cannot fix (not found, invalid, conflict) are returned
// immediately.
type RetryStore struct {
	inner  Store
	policy RetryPolicy
	logger log.Logger
}

var _ Store = (*RetryStore)(nil)

func NewRetryStore(inner Store, policy RetryPolicy, logger log.Logger) *RetryStore {
	if logger == nil {
		logger = log.Nop()
	}
	return &RetryStore{inner: inner, policy: policy, logger: logger}
}

func (s *RetryStore) List(ctx context.Context, bucket string, opts ListOptions) (Listing, error) {
	var out Listing
	err := s.retry(ctx, "list", bucket, opts.Prefix, func() error {
		var err error
		out, err = s.inner.List(ctx, bucket, opts)
		return err
	})
	return out, err
}

// Put is retried only when the body can be rewound.
func (s *RetryStore) Put(ctx context.Context, bucket, key string, r io.Reader, contentType string) error {
	seeker, ok := r.(io.Seeker)
	if !ok {
		return s.inner.Put(ctx, bucket, key, r, contentType)
	}
	first := true
	return s.retry(ctx, "put", bucket, key, func() error {
		if !first {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return xerrors.WithKind(xerrors.Wrap(err, "rewind upload body"), xerrors.KindInvalid)
			}
		}
		first = false
		return s.inner.Put(ctx, bucket, key, r, contentType)
	})
}

func (s *RetryStore) Copy(ctx context.Context, bucket, src, dst string) (ObjectInfo, error) {
	var out ObjectInfo
	err := s.retry(ctx, "copy", bucket, src, func() error {
		var err error
		out, err = s.inner.Copy(ctx, bucket, src, dst)
		return err
	})
	return out, err
}

func (s *RetryStore) Delete(ctx context.Context, bucket, key string) error {
	return s.retry(ctx, "delete", bucket, key, func() error {
		return s.inner.Delete(ctx, bucket, key)
	})
}

func (s *RetryStore) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	var out ObjectInfo
	err := s.retry(ctx, "stat", bucket, key, func() error {
		var err error
		out, err = s.inner.Stat(ctx, bucket, key)
		return err
	})
	return out, err
}

func permanent(err error) bool {
	switch xerrors.KindOf(err) {
	case xerrors.KindNotFound, xerrors.KindInvalid, xerrors.KindConflict, xerrors.KindForbidden:
		return true
	}
	return false
}

func (s *RetryStore) retry(ctx context.Context, op, bucket, key string, fn func() error) error {
	var lastErr error
	backoff := s.policy.InitialBackoff

	for attempt := 0; attempt <= s.policy.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || permanent(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == s.policy.MaxRetries {
			break
		}

		s.logger.Debug(ctx, "store operation failed, retrying",
			"op", op, "bucket", bucket, "key", key,
			"attempt", attempt+1, "max_retries", s.policy.MaxRetries,
			"backoff", backoff, "err", lastErr,
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = time.Duration(float64(backoff) * s.policy.BackoffMultiplier)
		if backoff > s.policy.MaxBackoff {
			backoff = s.policy.MaxBackoff
		}
	}
	if s.policy.MaxRetries == 0 {
		return lastErr
	}
	return xerrors.Wrapf(lastErr, "%s %s/%s failed after %d attempts", op, bucket, key, s.policy.MaxRetries+1)
}
