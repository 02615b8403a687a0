package themes

import (
	"context"
	"strings"
	"time"

	"github.com/keithlinneman/themehub/internal/batch"
	"github.com/keithlinneman/themehub/internal/objstore"
	"github.com/keithlinneman/themehub/internal/pathutil"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

// File is one object as the dashboard shows it. Name is relative to the
// listed folder for Folder and the full key otherwise.
type File struct {
	Name        string    `json:"name"`
	URL         string    `json:"url,omitempty"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	Updated     time.Time `json:"updated"`
}

// FolderListing is the direct content of one folder.
type FolderListing struct {
	Files   []File   `json:"files"`
	Folders []string `json:"folders"`
}

// Pages returns the distinct folder names under the root in order of
// first appearance. The current folder is included.
func (s *Service) Pages(ctx context.Context, bucket string) ([]string, error) {
	if err := checkBucket(bucket); err != nil {
		return nil, err
	}
	prefix := s.root + "/"
	l, err := s.store.List(ctx, bucket, objstore.ListOptions{Prefix: prefix})
	if err != nil {
		return nil, xerrors.Wrapf(err, "list pages of %s", bucket)
	}

	pages := []string{}
	seen := make(map[string]bool)
	for _, o := range l.Objects {
		rest := strings.TrimPrefix(o.Key, prefix)
		// keys directly under the root belong to no page
		i := strings.Index(rest, "/")
		if i <= 0 {
			continue
		}
		page := rest[:i]
		if !seen[page] {
			seen[page] = true
			pages = append(pages, page)
		}
	}
	return pages, nil
}

// Folder lists the files directly inside folder and its subfolders.
// A folder that does not exist lists as empty.
func (s *Service) Folder(ctx context.Context, bucket, folder string) (FolderListing, error) {
	if err := checkBucket(bucket); err != nil {
		return FolderListing{}, err
	}
	if err := checkFolder(folder); err != nil {
		return FolderListing{}, err
	}
	prefix := s.folderPrefix(folder)
	l, err := s.store.List(ctx, bucket, objstore.ListOptions{Prefix: prefix, Delimiter: "/"})
	if err != nil {
		return FolderListing{}, xerrors.Wrapf(err, "list %s", prefix)
	}

	objs := s.fillContentTypes(ctx, bucket, l.Objects)
	out := FolderListing{Files: []File{}, Folders: []string{}}
	for _, o := range objs {
		name := strings.TrimPrefix(o.Key, prefix)
		if name == "" {
			continue
		}
		out.Files = append(out.Files, File{
			Name:        name,
			URL:         s.publicURL(bucket, o.Key),
			Size:        o.Size,
			ContentType: o.ContentType,
			Updated:     o.Updated,
		})
	}
	for _, p := range l.Prefixes {
		if name := strings.TrimSuffix(strings.TrimPrefix(p, prefix), "/"); name != "" {
			out.Folders = append(out.Folders, name)
		}
	}
	return out, nil
}

// Media lists every object under the root, at any depth.
func (s *Service) Media(ctx context.Context, bucket string) ([]File, error) {
	if err := checkBucket(bucket); err != nil {
		return nil, err
	}
	l, err := s.store.List(ctx, bucket, objstore.ListOptions{Prefix: s.root + "/"})
	if err != nil {
		return nil, xerrors.Wrapf(err, "list media of %s", bucket)
	}
	return files(l.Objects), nil
}

// List returns the objects directly under location, a slash separated
// folder path in the bucket. An empty location means the root.
func (s *Service) List(ctx context.Context, bucket, location string) ([]File, error) {
	if err := checkBucket(bucket); err != nil {
		return nil, err
	}
	prefix := s.root + "/"
	if location != "" {
		if pathutil.HasDotSegments(location) {
			return nil, xerrors.Invalid("invalid location %q", location)
		}
		prefix = pathutil.Join(true, location)
		if prefix == "" {
			return nil, xerrors.Invalid("invalid location %q", location)
		}
	}
	l, err := s.store.List(ctx, bucket, objstore.ListOptions{Prefix: prefix, Delimiter: "/"})
	if err != nil {
		return nil, xerrors.Wrapf(err, "list %s", prefix)
	}
	return files(l.Objects), nil
}

// fillContentTypes stats objects whose listing carried no content type.
// Stat failures leave the type empty.
func (s *Service) fillContentTypes(ctx context.Context, bucket string, objs []objstore.ObjectInfo) []objstore.ObjectInfo {
	var missing []int
	for i, o := range objs {
		if o.ContentType == "" && pathutil.Base(o.Key) != "" {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return objs
	}
	out := append([]objstore.ObjectInfo(nil), objs...)
	res := batch.Run(ctx, missing, s.concurrency, func(ctx context.Context, i int) error {
		info, err := s.store.Stat(ctx, bucket, out[i].Key)
		if err != nil {
			return err
		}
		out[i].ContentType = info.ContentType
		return nil
	})
	if err := res.Err(); err != nil {
		s.logger.Debug(ctx, "stat for content type failed", "bucket", bucket, "failed", len(res.Failed()), "err", err)
	}
	return out
}

func files(objs []objstore.ObjectInfo) []File {
	out := make([]File, 0, len(objs))
	for _, o := range objs {
		out = append(out, File{
			Name:        o.Key,
			Size:        o.Size,
			ContentType: o.ContentType,
			Updated:     o.Updated,
		})
	}
	return out
}
