package themes

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/keithlinneman/themehub/internal/batch"
	"github.com/keithlinneman/themehub/internal/objstore"
	"github.com/keithlinneman/themehub/internal/pathutil"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

// CreateFolder writes the empty placeholder object for folder. Anything
// already stored under the folder is a conflict.
func (s *Service) CreateFolder(ctx context.Context, bucket, folder string) error {
	if err := checkBucket(bucket); err != nil {
		return err
	}
	if err := checkFolder(folder); err != nil {
		return err
	}
	prefix := s.folderPrefix(folder)
	l, err := s.store.List(ctx, bucket, objstore.ListOptions{Prefix: prefix, Delimiter: "/"})
	if err != nil {
		return xerrors.Wrapf(err, "list %s", prefix)
	}
	if !l.Empty() {
		return xerrors.Conflict("folder %q already exists", folder)
	}
	if err := s.store.Put(ctx, bucket, prefix, bytes.NewReader(nil), ""); err != nil {
		return xerrors.Wrapf(err, "create folder %s", prefix)
	}
	s.logger.Info(ctx, "folder created", "bucket", bucket, "folder", folder)
	return nil
}

// DeleteFolder removes every object under folder and returns how many
// were deleted.
func (s *Service) DeleteFolder(ctx context.Context, bucket, folder string) (int, error) {
	if err := checkBucket(bucket); err != nil {
		return 0, err
	}
	if err := checkFolder(folder); err != nil {
		return 0, err
	}
	prefix := s.folderPrefix(folder)
	l, err := s.store.List(ctx, bucket, objstore.ListOptions{Prefix: prefix})
	if err != nil {
		return 0, xerrors.Wrapf(err, "list %s", prefix)
	}
	if len(l.Objects) == 0 {
		return 0, xerrors.NotFound("folder %q not found", folder)
	}

	res := batch.Run(ctx, l.Keys(), s.concurrency, func(ctx context.Context, key string) error {
		return s.deleteIgnoringMissing(ctx, bucket, key)
	})
	n := res.Succeeded()
	if err := res.Err(); err != nil {
		return n, xerrors.Wrapf(err, "delete folder %s: %d of %d object(s) left", prefix, len(res.Failed()), len(res))
	}
	s.logger.Info(ctx, "folder deleted", "bucket", bucket, "folder", folder, "objects", n)
	return n, nil
}

// Upload stores r as folder/filename. filename is reduced to its base name
// so client supplied paths cannot escape the folder.
func (s *Service) Upload(ctx context.Context, bucket, folder, filename string, r io.Reader, contentType string) (string, error) {
	if err := checkBucket(bucket); err != nil {
		return "", err
	}
	if err := checkFolder(folder); err != nil {
		return "", err
	}
	name := baseName(filename)
	if !pathutil.SafeSegment(name) {
		return "", xerrors.Invalid("invalid file name %q", filename)
	}
	key := pathutil.Join(false, s.root, folder, name)
	if err := s.store.Put(ctx, bucket, key, r, contentType); err != nil {
		return "", xerrors.Wrapf(err, "upload %s", key)
	}
	s.logger.Info(ctx, "file uploaded", "bucket", bucket, "key", key, "content_type", contentType)
	return key, nil
}

// DeleteFile removes folder/file, or reports NotFound.
func (s *Service) DeleteFile(ctx context.Context, bucket, folder, file string) error {
	if err := checkBucket(bucket); err != nil {
		return err
	}
	if err := checkFolder(folder); err != nil {
		return err
	}
	if !pathutil.SafeSegment(file) {
		return xerrors.Invalid("invalid file name %q", file)
	}
	key := pathutil.Join(false, s.root, folder, file)
	// NotFound from Stat carries through the wrap
	if _, err := s.store.Stat(ctx, bucket, key); err != nil {
		return xerrors.Wrapf(err, "stat %s", key)
	}
	if err := s.store.Delete(ctx, bucket, key); err != nil {
		return xerrors.Wrapf(err, "delete %s", key)
	}
	s.logger.Info(ctx, "file deleted", "bucket", bucket, "key", key)
	return nil
}

// baseName strips any directory part, with either separator, from a
// client supplied file name.
func baseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSpace(name)
}
