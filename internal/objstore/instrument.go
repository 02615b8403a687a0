package objstore

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/keithlinneman/themehub/internal/objstore"

// Observer receives one call per store operation.
type Observer interface {
	ObserveStoreOp(op string, d time.Duration, err error)
}

type InstrumentOptions struct {
	// Timeout bounds each call. Zero leaves the caller's deadline alone.
	Timeout  time.Duration
	Observer Observer
	Tracer   trace.Tracer
}

// Instrumented wraps a Store with per-call timeouts, spans and metrics.
type Instrumented struct {
	inner   Store
	timeout time.Duration
	obs     Observer
	tracer  trace.Tracer
}

var _ Store = (*Instrumented)(nil)

func Instrument(inner Store, opts InstrumentOptions) *Instrumented {
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	return &Instrumented{inner: inner, timeout: opts.Timeout, obs: opts.Observer, tracer: opts.Tracer}
}

func (s *Instrumented) List(ctx context.Context, bucket string, opts ListOptions) (out Listing, err error) {
	ctx, done := s.start(ctx, "list", bucket, attribute.String("objstore.prefix", opts.Prefix))
	defer func() { done(err, attribute.Int("objstore.objects", len(out.Objects))) }()
	return s.inner.List(ctx, bucket, opts)
}

func (s *Instrumented) Put(ctx context.Context, bucket, key string, r io.Reader, contentType string) (err error) {
	ctx, done := s.start(ctx, "put", bucket, attribute.String("objstore.key", key))
	defer func() { done(err) }()
	return s.inner.Put(ctx, bucket, key, r, contentType)
}

func (s *Instrumented) Copy(ctx context.Context, bucket, src, dst string) (out ObjectInfo, err error) {
	ctx, done := s.start(ctx, "copy", bucket,
		attribute.String("objstore.src", src),
		attribute.String("objstore.dst", dst),
	)
	defer func() { done(err) }()
	return s.inner.Copy(ctx, bucket, src, dst)
}

func (s *Instrumented) Delete(ctx context.Context, bucket, key string) (err error) {
	ctx, done := s.start(ctx, "delete", bucket, attribute.String("objstore.key", key))
	defer func() { done(err) }()
	return s.inner.Delete(ctx, bucket, key)
}

func (s *Instrumented) Stat(ctx context.Context, bucket, key string) (out ObjectInfo, err error) {
	ctx, done := s.start(ctx, "stat", bucket, attribute.String("objstore.key", key))
	defer func() { done(err) }()
	return s.inner.Stat(ctx, bucket, key)
}

func (s *Instrumented) start(ctx context.Context, op, bucket string, attrs ...attribute.KeyValue) (context.Context, func(error, ...attribute.KeyValue)) {
	began := time.Now()
	cancel := context.CancelFunc(func() {})
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	attrs = append(attrs, attribute.String("objstore.op", op), attribute.String("objstore.bucket", bucket))
	ctx, span := s.tracer.Start(ctx, "objstore."+op, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))

	return ctx, func(err error, more ...attribute.KeyValue) {
		defer cancel()
		span.SetAttributes(more...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, op+" failed")
		}
		span.End()
		if s.obs != nil {
			s.obs.ObserveStoreOp(op, time.Since(began), err)
		}
	}
}
