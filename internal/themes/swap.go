package themes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/keithlinneman/themehub/internal/batch"
	"github.com/keithlinneman/themehub/internal/cryptoutil"
	"github.com/keithlinneman/themehub/internal/objstore"
	"github.com/keithlinneman/themehub/internal/pathutil"
	"github.com/keithlinneman/themehub/internal/records"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

// ItemFailure is one object a swap could not copy or clean up. Reason is
// the error kind; the error text stays in Err and in the logs.
type ItemFailure struct {
	Op     string `json:"op"`
	Key    string `json:"key"`
	Dest   string `json:"dest,omitempty"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// SwapResult accounts for every object a swap touched. Record is set once
// the swap has been recorded.
type SwapResult struct {
	Website  string               `json:"website"`
	Theme    string               `json:"theme"`
	Previous string               `json:"previous,omitempty"`
	Copied   int                  `json:"copied"`
	Deleted  int                  `json:"deleted"`
	Failed   []ItemFailure        `json:"failed,omitempty"`
	Record   *records.ThemeRecord `json:"record,omitempty"`
}

// SwapError reports a swap that stopped after copying started. The theme
// record was not updated.
type SwapError struct {
	Result SwapResult
	Err    error
}

func (e *SwapError) Error() string {
	return fmt.Sprintf("set theme %s/%s: %d object(s) failed: %v", e.Result.Website, e.Result.Theme, len(e.Result.Failed), e.Err)
}

func (e *SwapError) Unwrap() error { return e.Err }

func (e *SwapError) Kind() xerrors.Kind { return xerrors.KindInternal }

type copyItem struct {
	src, dst, md5 string
}

// SetTheme makes the current folder of bucket a copy of folder and records
// the swap. Objects are flattened to their base names. New objects are
// copied over the old ones before stale ones are removed, so the current
// folder is never empty while the swap runs. Swaps of one website are
// serialized within this process.
//
// The swap ignores cancellation of ctx and is bounded by the swap timeout
// instead. A failed copy returns a *SwapError and leaves the record alone;
// failed stale deletes are reported in the result only.
func (s *Service) SetTheme(ctx context.Context, bucket, folder string) (SwapResult, error) {
	began := s.now()
	res := SwapResult{Website: bucket, Theme: folder}

	if err := checkBucket(bucket); err != nil {
		s.observe("rejected", began, res)
		return res, err
	}
	if err := checkFolder(folder); err != nil {
		s.observe("rejected", began, res)
		return res, err
	}
	if folder == s.current {
		s.observe("rejected", began, res)
		return res, xerrors.Invalid("folder %q is the current theme folder", folder)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.swapTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "themes.SetTheme")
	defer span.End()
	span.SetAttributes(attribute.String("themes.website", bucket), attribute.String("themes.theme", folder))

	s.locks.Lock(bucket)
	defer s.locks.Unlock(bucket)

	res, err := s.swap(ctx, res)
	span.SetAttributes(
		attribute.Int("themes.copied", res.Copied),
		attribute.Int("themes.deleted", res.Deleted),
		attribute.Int("themes.failed", len(res.Failed)),
	)

	switch {
	case err == nil && len(res.Failed) > 0:
		s.observe("partial", began, res)
		s.logger.Warn(ctx, "theme swapped with leftover files",
			"website", bucket, "theme", folder, "previous", res.Previous,
			"copied", res.Copied, "deleted", res.Deleted, "leftover", len(res.Failed),
		)
	case err == nil:
		s.observe("success", began, res)
		s.logger.Info(ctx, "theme swapped",
			"website", bucket, "theme", folder, "previous", res.Previous,
			"copied", res.Copied, "deleted", res.Deleted,
		)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "swap failed")
		var swapErr *SwapError
		switch k := xerrors.KindOf(err); {
		case k == xerrors.KindNotFound || k == xerrors.KindConflict || k == xerrors.KindInvalid:
			s.observe("rejected", began, res)
		case errors.As(err, &swapErr):
			s.observe("failed", began, res)
			s.logger.Error(ctx, err, "theme swap failed",
				"website", bucket, "theme", folder, "copied", res.Copied, "failed", len(res.Failed),
			)
		default:
			s.observe("failed", began, res)
			s.logger.Error(ctx, err, "theme swap failed", "website", bucket, "theme", folder)
		}
	}
	return res, err
}

func (s *Service) swap(ctx context.Context, res SwapResult) (SwapResult, error) {
	bucket, folder := res.Website, res.Theme
	srcPrefix := s.folderPrefix(folder)
	curPrefix := s.folderPrefix(s.current)

	src, err := s.store.List(ctx, bucket, objstore.ListOptions{Prefix: srcPrefix})
	if err != nil {
		return res, xerrors.Wrapf(err, "list %s", srcPrefix)
	}
	plan, err := planCopies(src.Objects, curPrefix)
	if err != nil {
		return res, err
	}
	if len(plan) == 0 && !s.allowEmpty {
		return res, xerrors.NotFound("theme folder %q has no files in bucket %q", folder, bucket)
	}

	old, err := s.store.List(ctx, bucket, objstore.ListOptions{Prefix: curPrefix})
	if err != nil {
		return res, xerrors.Wrapf(err, "list %s", curPrefix)
	}

	copies := batch.Run(ctx, plan, s.concurrency, func(ctx context.Context, it copyItem) error {
		info, err := s.store.Copy(ctx, bucket, it.src, it.dst)
		if err != nil {
			return err
		}
		if it.md5 != "" && info.MD5 != "" && !cryptoutil.HashEqual(it.md5, info.MD5) {
			return xerrors.Newf("checksum mismatch copying %s", it.src)
		}
		return nil
	})
	res.Copied = copies.Succeeded()
	if failed := copies.Failed(); len(failed) > 0 {
		for _, f := range failed {
			res.Failed = append(res.Failed, ItemFailure{
				Op: "copy", Key: f.Item.src, Dest: f.Item.dst,
				Reason: xerrors.KindOf(f.Err).String(), Err: f.Err,
			})
		}
		return res, &SwapError{Result: res, Err: copies.Err()}
	}

	keep := make(map[string]bool, len(plan))
	for _, it := range plan {
		keep[it.dst] = true
	}
	var stale []string
	for _, o := range old.Objects {
		if pathutil.Base(o.Key) != "" && !keep[o.Key] {
			stale = append(stale, o.Key)
		}
	}
	deletes := batch.Run(ctx, stale, s.concurrency, func(ctx context.Context, key string) error {
		return s.deleteIgnoringMissing(ctx, bucket, key)
	})
	res.Deleted = deletes.Succeeded()
	for _, f := range deletes.Failed() {
		res.Failed = append(res.Failed, ItemFailure{
			Op: "delete", Key: f.Item, Reason: xerrors.KindOf(f.Err).String(), Err: f.Err,
		})
	}

	rec, err := s.records.RecordSwap(ctx, bucket, folder, s.now().UTC())
	if err != nil {
		return res, xerrors.Wrapf(err, "record swap of %s to %s", bucket, folder)
	}
	res.Record = &rec
	res.Previous = previousTheme(rec)
	return res, nil
}

// planCopies maps source objects onto the current folder by base name.
// Folder placeholders are skipped; two sources with one base name conflict.
func planCopies(objs []objstore.ObjectInfo, curPrefix string) ([]copyItem, error) {
	plan := make([]copyItem, 0, len(objs))
	from := make(map[string]string, len(objs))
	for _, o := range objs {
		base := pathutil.Base(o.Key)
		if base == "" {
			continue
		}
		dst := curPrefix + base
		if prev, dup := from[dst]; dup {
			return nil, xerrors.Conflict("%s and %s would both be copied to %s", prev, o.Key, dst)
		}
		from[dst] = o.Key
		plan = append(plan, copyItem{src: o.Key, dst: dst, md5: o.MD5})
	}
	return plan, nil
}

// previousTheme is the theme the swap replaced; the first swap of a
// website has none.
func previousTheme(rec records.ThemeRecord) string {
	if rec.Version <= 1 || len(rec.History) == 0 {
		return ""
	}
	return rec.History[len(rec.History)-1].Theme
}

func (s *Service) observe(outcome string, began time.Time, res SwapResult) {
	if s.obs == nil {
		return
	}
	s.obs.ObserveSwap(outcome, s.now().Sub(began), res.Copied, res.Deleted, len(res.Failed))
}
