// Package secrets resolves the token signing secret from one of three
// sources: a literal value, an SSM SecureString parameter, or a KMS
// encrypted blob.
package secrets

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/themehub/internal/xerrors"
)

// MinLength is the shortest secret accepted for HS256 signing.
const MinLength = 16

// ssmParamGetter is the subset of the SSM API needed to read a parameter.
type ssmParamGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// kmsDecrypter is the subset of the KMS API needed to decrypt a blob.
type kmsDecrypter interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Source names where the secret lives. Exactly one field is set.
type Source struct {
	Literal  string
	SSMParam string
	// KMSBlob is base64 ciphertext produced by kms encrypt.
	KMSBlob string
}

type Resolver struct {
	SSM ssmParamGetter
	KMS kmsDecrypter
}

// NewResolver builds SSM and KMS clients from cfg.
func NewResolver(cfg aws.Config) *Resolver {
	return &Resolver{SSM: ssm.NewFromConfig(cfg), KMS: kms.NewFromConfig(cfg)}
}

// Remote reports whether resolving src needs AWS.
func (s Source) Remote() bool { return s.Literal == "" && (s.SSMParam != "" || s.KMSBlob != "") }

// Resolve returns the secret bytes named by src.
func (r *Resolver) Resolve(ctx context.Context, src Source) ([]byte, error) {
	var (
		secret []byte
		err    error
	)
	switch {
	case src.Literal != "":
		secret = []byte(src.Literal)
	case src.SSMParam != "":
		secret, err = r.fromSSM(ctx, src.SSMParam)
	case src.KMSBlob != "":
		secret, err = r.fromKMS(ctx, src.KMSBlob)
	default:
		return nil, xerrors.New("no secret source configured")
	}
	if err != nil {
		return nil, err
	}
	if len(secret) < MinLength {
		return nil, xerrors.Newf("secret is %d bytes, need at least %d", len(secret), MinLength)
	}
	return secret, nil
}

func (r *Resolver) fromSSM(ctx context.Context, name string) ([]byte, error) {
	if r == nil || r.SSM == nil {
		return nil, xerrors.New("ssm client is not configured")
	}
	out, err := r.SSM.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, xerrors.Newf("SSM parameter %s has no value", name)
	}
	return []byte(strings.TrimSpace(*out.Parameter.Value)), nil
}

func (r *Resolver) fromKMS(ctx context.Context, blob string) ([]byte, error) {
	if r == nil || r.KMS == nil {
		return nil, xerrors.New("kms client is not configured")
	}
	ct, err := base64.StdEncoding.DecodeString(strings.TrimSpace(blob))
	if err != nil {
		return nil, xerrors.Wrap(err, "decode kms ciphertext")
	}
	out, err := r.KMS.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: ct})
	if err != nil {
		return nil, xerrors.Wrap(err, "kms decrypt")
	}
	return out.Plaintext, nil
}
