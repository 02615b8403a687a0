package objstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/keithlinneman/themehub/internal/xerrors"
)

type stubS3 struct {
	pages    []*s3.ListObjectsV2Output
	listIn   []*s3.ListObjectsV2Input
	copyIn   *s3.CopyObjectInput
	copyErr  error
	headErr  error
	putIn    *s3.PutObjectInput
	deleteIn *s3.DeleteObjectInput
}

func (s *stubS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	s.listIn = append(s.listIn, in)
	page := s.pages[len(s.listIn)-1]
	return page, nil
}

func (s *stubS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	s.putIn = in
	return &s3.PutObjectOutput{}, nil
}

func (s *stubS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	s.copyIn = in
	if s.copyErr != nil {
		return nil, s.copyErr
	}
	return &s3.CopyObjectOutput{CopyObjectResult: &types.CopyObjectResult{
		ETag:         aws.String(`"0cc175b9c0f1b6a831c399e269772661"`),
		LastModified: aws.Time(time.Unix(100, 0)),
	}}, nil
}

func (s *stubS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	s.deleteIn = in
	return &s3.DeleteObjectOutput{}, nil
}

func (s *stubS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if s.headErr != nil {
		return nil, s.headErr
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(3), ContentType: aws.String("text/css")}, nil
}

func TestS3Store_ListPaginates(t *testing.T) {
	stub := &stubS3{pages: []*s3.ListObjectsV2Output{
		{
			Contents:              []types.Object{{Key: aws.String("root/a.txt"), Size: aws.Int64(1)}},
			CommonPrefixes:        []types.CommonPrefix{{Prefix: aws.String("root/theme1/")}},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("t1"),
		},
		{
			Contents:    []types.Object{{Key: aws.String("root/b.txt"), ETag: aws.String(`"abc-2"`)}},
			IsTruncated: aws.Bool(false),
		},
	}}
	s := NewS3Store(stub)

	got, err := s.List(context.Background(), "site-a", ListOptions{Prefix: "root/", Delimiter: "/"})
	if err != nil {
		t.Fatal(err)
	}
	if len(stub.listIn) != 2 || aws.ToString(stub.listIn[1].ContinuationToken) != "t1" {
		t.Fatalf("pagination inputs = %+v", stub.listIn)
	}
	if strings.Join(got.Keys(), ",") != "root/a.txt,root/b.txt" || len(got.Prefixes) != 1 {
		t.Fatalf("listing = %+v", got)
	}
	if got.Objects[1].MD5 != "" {
		t.Fatal("multipart etag must not be reported as md5")
	}
}

func TestS3Store_CopyEscapesSource(t *testing.T) {
	stub := &stubS3{}
	info, err := NewS3Store(stub).Copy(context.Background(), "site-a", "root/my theme/a+b.css", "root/current_theme/a+b.css")
	if err != nil {
		t.Fatal(err)
	}
	if got := aws.ToString(stub.copyIn.CopySource); got != "site-a/root/my%20theme/a+b.css" {
		t.Fatalf("CopySource = %q", got)
	}
	if info.MD5 != "0cc175b9c0f1b6a831c399e269772661" || info.Key != "root/current_theme/a+b.css" {
		t.Fatalf("info = %+v", info)
	}
}

func TestS3Store_NotFoundMapping(t *testing.T) {
	stub := &stubS3{
		headErr: &types.NotFound{},
		copyErr: &smithy.GenericAPIError{Code: "NoSuchKey", Message: "missing"},
	}
	s := NewS3Store(stub)
	if _, err := s.Stat(context.Background(), "b", "k"); !xerrors.Is(err, xerrors.KindNotFound) {
		t.Fatalf("Stat err = %v", err)
	}
	if _, err := s.Copy(context.Background(), "b", "k", "d"); !xerrors.Is(err, xerrors.KindNotFound) {
		t.Fatalf("Copy err = %v", err)
	}
	other := &stubS3{headErr: errors.New("throttled")}
	if _, err := NewS3Store(other).Stat(context.Background(), "b", "k"); xerrors.Is(err, xerrors.KindNotFound) {
		t.Fatal("generic errors must stay internal")
	}
}

func TestS3Store_PutAndDelete(t *testing.T) {
	stub := &stubS3{}
	s := NewS3Store(stub)
	if err := s.Put(context.Background(), "b", "k", strings.NewReader("x"), "image/png"); err != nil {
		t.Fatal(err)
	}
	if aws.ToString(stub.putIn.ContentType) != "image/png" {
		t.Fatalf("ContentType = %v", stub.putIn.ContentType)
	}
	if err := s.Delete(context.Background(), "b", "k"); err != nil || aws.ToString(stub.deleteIn.Key) != "k" {
		t.Fatalf("Delete: %v %+v", err, stub.deleteIn)
	}
}
