// Package websites keeps the records of the sites the dashboard manages.
// Each website owns one bucket holding its theme folders.
package websites

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/keithlinneman/themehub/internal/log"
	"github.com/keithlinneman/themehub/internal/records"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

// bucket names as GCS and S3 both accept them
var bucketName = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,61}[a-z0-9]$`)

// Input is what a client supplies to create a website.
type Input struct {
	Name   string `json:"name"`
	Bucket string `json:"bucket"`
	Domain string `json:"domain,omitempty"`
}

type Service struct {
	store  records.WebsiteStore
	logger log.Logger
	now    func() time.Time
}

func New(store records.WebsiteStore, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

func (s *Service) Create(ctx context.Context, in Input) (records.Website, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Bucket = strings.TrimSpace(in.Bucket)
	if in.Name == "" || in.Bucket == "" {
		return records.Website{}, xerrors.Invalid("name and bucket are required")
	}
	if !bucketName.MatchString(in.Bucket) || strings.Contains(in.Bucket, "..") {
		return records.Website{}, xerrors.Invalid("invalid bucket name %q", in.Bucket)
	}
	w, err := s.store.CreateWebsite(ctx, records.Website{
		Name:      in.Name,
		Bucket:    in.Bucket,
		Domain:    strings.ToLower(strings.TrimSpace(in.Domain)),
		Status:    records.StatusActive,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return records.Website{}, xerrors.Wrap(err, "create website")
	}
	s.logger.Info(ctx, "website created", "website_id", w.ID, "bucket", w.Bucket)
	return w, nil
}

func (s *Service) Get(ctx context.Context, id string) (records.Website, error) {
	return s.store.WebsiteByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]records.Website, error) {
	return s.store.ListWebsites(ctx)
}

// Delete removes the record only; the bucket and its themes stay.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteWebsite(ctx, id); err != nil {
		return xerrors.Wrap(err, "delete website")
	}
	s.logger.Info(ctx, "website deleted", "website_id", id)
	return nil
}
