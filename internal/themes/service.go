// Package themes manages theme folders inside website buckets: listing
// pages and folders, folder and file CRUD, and swapping a folder into the
// live current theme folder.
package themes

import (
	"context"
	"strings"
	"time"

	"github.com/fishy/rowlock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/themehub/internal/log"
	"github.com/keithlinneman/themehub/internal/objstore"
	"github.com/keithlinneman/themehub/internal/pathutil"
	"github.com/keithlinneman/themehub/internal/records"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

const (
	DefaultRootFolder    = "theme_manager_Store"
	DefaultCurrentFolder = "current_theme"
	DefaultPublicBaseURL = "https://storage.googleapis.com"
	DefaultConcurrency   = 16
	DefaultSwapTimeout   = 5 * time.Minute

	tracerName = "github.com/keithlinneman/themehub/internal/themes"
)

// Observer receives one call per finished swap attempt. outcome is one of
// "success", "partial", "failed" or "rejected".
type Observer interface {
	ObserveSwap(outcome string, d time.Duration, copied, deleted, failed int)
}

type Options struct {
	Store   objstore.Store
	Records records.ThemeStore
	Logger  log.Logger

	// RootFolder holds every theme folder; it may span several segments.
	RootFolder    string
	CurrentFolder string
	PublicBaseURL string

	// Concurrency bounds per-object work within one operation.
	Concurrency int

	// AllowEmptyTheme swaps in a source folder with no files, leaving the
	// current folder empty, instead of rejecting it.
	AllowEmptyTheme bool

	// SwapTimeout bounds a swap, which runs detached from the caller's
	// cancellation.
	SwapTimeout time.Duration

	Observer Observer
	Tracer   trace.Tracer
	Now      func() time.Time
}

type Service struct {
	store   objstore.Store
	records records.ThemeStore
	logger  log.Logger
	obs     Observer
	tracer  trace.Tracer
	now     func() time.Time

	root        string
	current     string
	baseURL     string
	concurrency int
	allowEmpty  bool
	swapTimeout time.Duration

	locks *rowlock.RowLock
}

// New validates opts and fills defaults.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, xerrors.New("themes: Store is required")
	}
	if opts.Records == nil {
		return nil, xerrors.New("themes: Records is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RootFolder == "" {
		opts.RootFolder = DefaultRootFolder
	}
	if opts.CurrentFolder == "" {
		opts.CurrentFolder = DefaultCurrentFolder
	}
	if opts.PublicBaseURL == "" {
		opts.PublicBaseURL = DefaultPublicBaseURL
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.SwapTimeout <= 0 {
		opts.SwapTimeout = DefaultSwapTimeout
	}

	root := strings.Trim(opts.RootFolder, "/")
	if root == "" || pathutil.HasDotSegments(root) || strings.Contains(root, "//") {
		return nil, xerrors.Newf("themes: invalid root folder %q", opts.RootFolder)
	}
	if !pathutil.SafeSegment(opts.CurrentFolder) {
		return nil, xerrors.Newf("themes: invalid current folder %q", opts.CurrentFolder)
	}

	return &Service{
		store:       opts.Store,
		records:     opts.Records,
		logger:      opts.Logger,
		obs:         opts.Observer,
		tracer:      opts.Tracer,
		now:         opts.Now,
		root:        root,
		current:     opts.CurrentFolder,
		baseURL:     strings.TrimRight(opts.PublicBaseURL, "/"),
		concurrency: opts.Concurrency,
		allowEmpty:  opts.AllowEmptyTheme,
		swapTimeout: opts.SwapTimeout,
		locks:       rowlock.NewRowLock(rowlock.MutexNewLocker),
	}, nil
}

// RootFolder is the key prefix, without trailing slash, of all folders.
func (s *Service) RootFolder() string { return s.root }

// CurrentFolder is the name of the live theme folder.
func (s *Service) CurrentFolder() string { return s.current }

// Details returns the theme record of a website.
func (s *Service) Details(ctx context.Context, bucket string) (records.ThemeRecord, error) {
	if err := checkBucket(bucket); err != nil {
		return records.ThemeRecord{}, err
	}
	return s.records.GetTheme(ctx, bucket)
}

func (s *Service) folderPrefix(folder string) string {
	return pathutil.Join(true, s.root, folder)
}

func (s *Service) publicURL(bucket, key string) string {
	return s.baseURL + "/" + bucket + "/" + key
}

func checkBucket(bucket string) error {
	if !pathutil.SafeSegment(bucket) {
		return xerrors.Invalid("invalid bucket name %q", bucket)
	}
	return nil
}

func checkFolder(folder string) error {
	if !pathutil.SafeSegment(folder) {
		return xerrors.Invalid("invalid folder name %q", folder)
	}
	return nil
}

// deleteIgnoringMissing treats an object that is already gone as deleted.
func (s *Service) deleteIgnoringMissing(ctx context.Context, bucket, key string) error {
	err := s.store.Delete(ctx, bucket, key)
	if xerrors.Is(err, xerrors.KindNotFound) {
		return nil
	}
	return err
}
