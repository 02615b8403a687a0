package objstore

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/keithlinneman/themehub/internal/cryptoutil"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

type memObject struct {
	data        []byte
	contentType string
	updated     time.Time
	md5         string
}

// MemoryStore is an in-process Store for tests and local development.
// Buckets spring into existence on first write.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memObject
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string]memObject), now: time.Now}
}

func (m *MemoryStore) List(ctx context.Context, bucket string, opts ListOptions) (Listing, error) {
	if err := ctx.Err(); err != nil {
		return Listing{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	objs := m.buckets[bucket]
	keys := make([]string, 0, len(objs))
	for k := range objs {
		if strings.HasPrefix(k, opts.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out Listing
	seen := make(map[string]bool)
	for _, k := range keys {
		rest := k[len(opts.Prefix):]
		if opts.Delimiter != "" {
			if i := strings.Index(rest, opts.Delimiter); i >= 0 {
				p := opts.Prefix + rest[:i+len(opts.Delimiter)]
				if !seen[p] {
					seen[p] = true
					out.Prefixes = append(out.Prefixes, p)
				}
				continue
			}
		}
		out.Objects = append(out.Objects, objs[k].info(k))
	}
	return out, nil
}

func (m *MemoryStore) Put(ctx context.Context, bucket, key string, r io.Reader, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return xerrors.Wrapf(err, "read body for %s/%s", bucket, key)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(bucket, key, memObject{data: data, contentType: contentType})
	return nil
}

func (m *MemoryStore) Copy(ctx context.Context, bucket, src, dst string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.buckets[bucket][src]
	if !ok {
		return ObjectInfo{}, xerrors.NotFound("object %s/%s not found", bucket, src)
	}
	o.data = append([]byte(nil), o.data...)
	return m.put(bucket, dst, o), nil
}

func (m *MemoryStore) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket][key]; !ok {
		return xerrors.NotFound("object %s/%s not found", bucket, key)
	}
	delete(m.buckets[bucket], key)
	return nil
}

func (m *MemoryStore) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.buckets[bucket][key]
	if !ok {
		return ObjectInfo{}, xerrors.NotFound("object %s/%s not found", bucket, key)
	}
	return o.info(key), nil
}

// Get returns a copy of an object's bytes.
func (m *MemoryStore) Get(bucket, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.buckets[bucket][key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), o.data...), true
}

// caller holds m.mu
func (m *MemoryStore) put(bucket, key string, o memObject) ObjectInfo {
	b, ok := m.buckets[bucket]
	if !ok {
		b = make(map[string]memObject)
		m.buckets[bucket] = b
	}
	o.updated = m.now()
	o.md5 = cryptoutil.MD5Hex(o.data)
	b[key] = o
	return o.info(key)
}

func (o memObject) info(key string) ObjectInfo {
	return ObjectInfo{
		Key:         key,
		Size:        int64(len(o.data)),
		ContentType: o.contentType,
		Updated:     o.updated,
		MD5:         o.md5,
	}
}
