package objstore

import (
	"context"
	"encoding/hex"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/keithlinneman/themehub/internal/xerrors"
)

// GCSStore implements Store using Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
}

var _ Store = (*GCSStore)(nil)

// NewGCSStore creates a client with the given options, e.g.
// option.WithCredentialsFile or option.WithEndpoint for an emulator.
func NewGCSStore(ctx context.Context, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, xerrors.Wrap(err, "create GCS client")
	}
	return &GCSStore{client: client}, nil
}

func (s *GCSStore) List(ctx context.Context, bucket string, opts ListOptions) (Listing, error) {
	q := &storage.Query{Prefix: opts.Prefix, Delimiter: opts.Delimiter}

	var out Listing
	it := s.client.Bucket(bucket).Objects(ctx, q)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return Listing{}, gcsErr(err, "list gs://%s/%s", bucket, opts.Prefix)
		}
		// Prefix is set for rolled-up "directory" entries, Name for objects
		if attrs.Prefix != "" {
			out.Prefixes = append(out.Prefixes, attrs.Prefix)
			continue
		}
		out.Objects = append(out.Objects, gcsInfo(attrs))
	}
	return out, nil
}

func (s *GCSStore) Put(ctx context.Context, bucket, key string, r io.Reader, contentType string) error {
	copied, err := writeObject(ctx, r, func(wctx context.Context) objectWriter {
		w := s.client.Bucket(bucket).Object(key).NewWriter(wctx)
		w.ContentType = contentType
		return w
	})
	if err != nil && !copied {
		return xerrors.Wrapf(err, "write gs://%s/%s", bucket, key)
	}
	if err != nil {
		return gcsErr(err, "close writer for gs://%s/%s", bucket, key)
	}
	return nil
}

// objectWriter is the part of *storage.Writer that Put uses.
type objectWriter interface {
	io.Writer
	Close() error
}

// writeObject streams r into the writer returned by open. Close commits
// the object, so a failed copy cancels the writer's context first and the
// partial upload is discarded. copied reports whether r was fully read.
func writeObject(ctx context.Context, r io.Reader, open func(context.Context) objectWriter) (copied bool, err error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := open(wctx)
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return false, err
	}
	return true, w.Close()
}

func (s *GCSStore) Copy(ctx context.Context, bucket, src, dst string) (ObjectInfo, error) {
	b := s.client.Bucket(bucket)
	attrs, err := b.Object(dst).CopierFrom(b.Object(src)).Run(ctx)
	if err != nil {
		return ObjectInfo{}, gcsErr(err, "copy gs://%s/%s to %s", bucket, src, dst)
	}
	return gcsInfo(attrs), nil
}

func (s *GCSStore) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		return gcsErr(err, "delete gs://%s/%s", bucket, key)
	}
	return nil
}

func (s *GCSStore) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	attrs, err := s.client.Bucket(bucket).Object(key).Attrs(ctx)
	if err != nil {
		return ObjectInfo{}, gcsErr(err, "stat gs://%s/%s", bucket, key)
	}
	return gcsInfo(attrs), nil
}

// Close closes the underlying GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func gcsInfo(a *storage.ObjectAttrs) ObjectInfo {
	info := ObjectInfo{Key: a.Name, Size: a.Size, ContentType: a.ContentType, Updated: a.Updated}
	if len(a.MD5) > 0 {
		info.MD5 = hex.EncodeToString(a.MD5)
	}
	return info
}

func gcsErr(err error, format string, args ...any) error {
	wrapped := xerrors.Wrapf(err, format, args...)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return xerrors.WithKind(wrapped, xerrors.KindNotFound)
	}
	return wrapped
}
