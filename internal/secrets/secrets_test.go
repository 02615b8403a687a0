package secrets

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type stubSSM struct {
	value string
	err   error
	got   *ssm.GetParameterInput
}

func (s *stubSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	s.got = in
	if s.err != nil {
		return nil, s.err
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(s.value)}}, nil
}

type stubKMS struct {
	want []byte
	out  []byte
}

func (s *stubKMS) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	if !bytes.Equal(in.CiphertextBlob, s.want) {
		return nil, errors.New("InvalidCiphertextException")
	}
	return &kms.DecryptOutput{Plaintext: s.out}, nil
}

const long = "0123456789abcdef-signing"

func TestResolve_Literal(t *testing.T) {
	got, err := (&Resolver{}).Resolve(context.Background(), Source{Literal: long})
	if err != nil || string(got) != long {
		t.Fatalf("Resolve = %q, %v", got, err)
	}
	if _, err := (&Resolver{}).Resolve(context.Background(), Source{Literal: "short"}); err == nil {
		t.Fatal("short secret accepted")
	}
	if _, err := (&Resolver{}).Resolve(context.Background(), Source{}); err == nil {
		t.Fatal("empty source accepted")
	}
}

func TestResolve_SSM(t *testing.T) {
	s := &stubSSM{value: "  " + long + "\n"}
	got, err := (&Resolver{SSM: s}).Resolve(context.Background(), Source{SSMParam: "/themehub/jwt"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if string(got) != long {
		t.Errorf("secret = %q", got)
	}
	if aws.ToString(s.got.Name) != "/themehub/jwt" || !aws.ToBool(s.got.WithDecryption) {
		t.Errorf("request = %+v", s.got)
	}

	if _, err := (&Resolver{SSM: &stubSSM{err: errors.New("AccessDenied")}}).Resolve(context.Background(), Source{SSMParam: "/x"}); err == nil {
		t.Error("ssm error swallowed")
	}
	if _, err := (&Resolver{}).Resolve(context.Background(), Source{SSMParam: "/x"}); err == nil {
		t.Error("missing client accepted")
	}
}

func TestResolve_KMS(t *testing.T) {
	ct := []byte{0x01, 0x02, 0x03}
	r := &Resolver{KMS: &stubKMS{want: ct, out: []byte(long)}}
	got, err := r.Resolve(context.Background(), Source{KMSBlob: base64.StdEncoding.EncodeToString(ct)})
	if err != nil || string(got) != long {
		t.Fatalf("Resolve = %q, %v", got, err)
	}
	if _, err := r.Resolve(context.Background(), Source{KMSBlob: "not base64!"}); err == nil {
		t.Error("bad base64 accepted")
	}
}

func TestSource_Remote(t *testing.T) {
	if (Source{Literal: long}).Remote() {
		t.Error("literal is not remote")
	}
	if !(Source{SSMParam: "/x"}).Remote() || !(Source{KMSBlob: "AQ=="}).Remote() {
		t.Error("ssm and kms are remote")
	}
}
