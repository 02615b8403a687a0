package objstore

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/keithlinneman/themehub/internal/xerrors"
)

// S3API is the subset of *s3.Client the store calls.
type S3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store implements Store on Amazon S3 or an S3 compatible service.
// S3 does not report deletes of missing keys, so Delete never returns
// NotFound here.
type S3Store struct {
	client S3API
}

var _ Store = (*S3Store)(nil)

func NewS3Store(client S3API) *S3Store {
	return &S3Store{client: client}
}

func (s *S3Store) List(ctx context.Context, bucket string, opts ListOptions) (Listing, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if opts.Prefix != "" {
		in.Prefix = aws.String(opts.Prefix)
	}
	if opts.Delimiter != "" {
		in.Delimiter = aws.String(opts.Delimiter)
	}

	var out Listing
	p := s3.NewListObjectsV2Paginator(s.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return Listing{}, s3Err(err, "list s3://%s/%s", bucket, opts.Prefix)
		}
		for _, cp := range page.CommonPrefixes {
			out.Prefixes = append(out.Prefixes, aws.ToString(cp.Prefix))
		}
		for _, o := range page.Contents {
			out.Objects = append(out.Objects, ObjectInfo{
				Key:     aws.ToString(o.Key),
				Size:    aws.ToInt64(o.Size),
				Updated: aws.ToTime(o.LastModified),
				MD5:     etagMD5(o.ETag),
			})
		}
	}
	return out, nil
}

func (s *S3Store) Put(ctx context.Context, bucket, key string, r io.Reader, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return s3Err(err, "put s3://%s/%s", bucket, key)
	}
	return nil
}

func (s *S3Store) Copy(ctx context.Context, bucket, src, dst string) (ObjectInfo, error) {
	out, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(copySource(bucket, src)),
	})
	if err != nil {
		return ObjectInfo{}, s3Err(err, "copy s3://%s/%s to %s", bucket, src, dst)
	}
	info := ObjectInfo{Key: dst}
	if r := out.CopyObjectResult; r != nil {
		info.Updated = aws.ToTime(r.LastModified)
		info.MD5 = etagMD5(r.ETag)
	}
	return info, nil
}

func (s *S3Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return s3Err(err, "delete s3://%s/%s", bucket, key)
}

func (s *S3Store) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectInfo{}, s3Err(err, "head s3://%s/%s", bucket, key)
	}
	return ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		Updated:     aws.ToTime(out.LastModified),
		MD5:         etagMD5(out.ETag),
	}, nil
}

// copySource is "bucket/key" with each key segment escaped.
func copySource(bucket, key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segs, "/")
}

// etagMD5 returns the ETag as an MD5 digest. Multipart ETags ("<hash>-N")
// are not digests of the content and are dropped.
func etagMD5(etag *string) string {
	e := strings.Trim(aws.ToString(etag), `"`)
	if len(e) != 32 || strings.Contains(e, "-") {
		return ""
	}
	return strings.ToLower(e)
}

func s3Err(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	wrapped := xerrors.Wrapf(err, format, args...)

	var nsk *types.NoSuchKey
	var nf *types.NotFound
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsk) || errors.As(err, &nf) || errors.As(err, &nsb) {
		return xerrors.WithKind(wrapped, xerrors.KindNotFound)
	}
	// CopyObject reports a missing source as a generic API error
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return xerrors.WithKind(wrapped, xerrors.KindNotFound)
		}
	}
	return wrapped
}
