// Package objstore abstracts the bucket operations themes are built on.
// Buckets are passed per call because every website owns its own bucket.
package objstore

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes one stored object. MD5 is a lowercase hex digest
// when the backend reports one.
type ObjectInfo struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	Updated     time.Time `json:"updated"`
	MD5         string    `json:"md5,omitempty"`
}

// ListOptions selects keys by prefix. With a Delimiter, keys that contain
// the delimiter after the prefix are rolled up into Listing.Prefixes.
type ListOptions struct {
	Prefix    string
	Delimiter string
}

// Listing is sorted by key; Prefixes end with the delimiter.
type Listing struct {
	Objects  []ObjectInfo
	Prefixes []string
}

// Keys returns the object keys of the listing in order.
func (l Listing) Keys() []string {
	out := make([]string, len(l.Objects))
	for i, o := range l.Objects {
		out[i] = o.Key
	}
	return out
}

// Empty reports whether the listing matched nothing at all.
func (l Listing) Empty() bool { return len(l.Objects) == 0 && len(l.Prefixes) == 0 }

// Store is the object storage contract. Missing objects are reported with
// xerrors.KindNotFound from Copy, Stat and, where the backend can tell,
// Delete.
type Store interface {
	List(ctx context.Context, bucket string, opts ListOptions) (Listing, error)
	Put(ctx context.Context, bucket, key string, r io.Reader, contentType string) error
	// Copy replaces dst with the contents of src within one bucket. The
	// replacement is atomic per object.
	Copy(ctx context.Context, bucket, src, dst string) (ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
}
