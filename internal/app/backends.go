// Package app opens the backends both binaries share from an App config.
package app

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"

	"github.com/keithlinneman/themehub/internal/cfg"
	"github.com/keithlinneman/themehub/internal/log"
	"github.com/keithlinneman/themehub/internal/objstore"
	"github.com/keithlinneman/themehub/internal/records"
	"github.com/keithlinneman/themehub/internal/secrets"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

// SecretSource is where the token signing secret lives.
func SecretSource(conf cfg.App) secrets.Source {
	return secrets.Source{
		Literal:  conf.JWTSecret,
		SSMParam: conf.JWTSecretSSMParam,
		KMSBlob:  conf.JWTSecretKMSBlob,
	}
}

// LoadAWS returns nil when neither the store nor the secret lives in AWS.
func LoadAWS(ctx context.Context, conf cfg.App) (*aws.Config, error) {
	if conf.StoreBackend != cfg.StoreS3 && !SecretSource(conf).Remote() {
		return nil, nil
	}
	c, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "load default AWS config")
	}
	return &c, nil
}

// JWTSecret resolves the token signing secret.
func JWTSecret(ctx context.Context, conf cfg.App, awsCfg *aws.Config) ([]byte, error) {
	src := SecretSource(conf)
	r := &secrets.Resolver{}
	if src.Remote() {
		if awsCfg == nil {
			return nil, xerrors.New("AWS config required for remote secret")
		}
		r = secrets.NewResolver(*awsCfg)
	}
	return r.Resolve(ctx, src)
}

// OpenObjectStore builds the configured backend. Instrumentation sits
// inside the retries so each attempt is timed and traced.
func OpenObjectStore(ctx context.Context, conf cfg.App, awsCfg *aws.Config, L log.Logger, obs objstore.Observer) (objstore.Store, func(), error) {
	var (
		base    objstore.Store
		closeFn = func() {}
	)
	switch conf.StoreBackend {
	case cfg.StoreGCS:
		var opts []option.ClientOption
		if conf.GCSCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(conf.GCSCredentialsFile))
		}
		if conf.GCSEndpoint != "" {
			opts = append(opts, option.WithEndpoint(conf.GCSEndpoint))
		}
		gcs, err := objstore.NewGCSStore(ctx, opts...)
		if err != nil {
			return nil, nil, err
		}
		base = gcs
		closeFn = func() {
			if err := gcs.Close(); err != nil {
				L.Warn(context.Background(), "gcs client close failed", "error", err)
			}
		}
	case cfg.StoreS3:
		if awsCfg == nil {
			return nil, nil, xerrors.New("AWS config required for the s3 backend")
		}
		base = objstore.NewS3Store(s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
			if conf.S3Region != "" {
				o.Region = conf.S3Region
			}
		}))
	case cfg.StoreMemory:
		L.Warn(ctx, "using in-memory object store, themes are lost on restart")
		base = objstore.NewMemoryStore()
	default:
		return nil, nil, xerrors.Newf("unknown store backend %q", conf.StoreBackend)
	}

	inner := objstore.Instrument(base, objstore.InstrumentOptions{Timeout: conf.StoreTimeout, Observer: obs})
	if conf.StoreRetries == 0 {
		return inner, closeFn, nil
	}
	return objstore.NewRetryStore(inner, objstore.DefaultRetryPolicy(conf.StoreRetries), L.With("component", "objstore")), closeFn, nil
}

// OpenRecords connects the configured record store.
func OpenRecords(ctx context.Context, conf cfg.App) (records.Store, error) {
	switch conf.RecordsBackend {
	case cfg.RecordsMongo:
		m, err := records.OpenMongo(ctx, conf.MongoURI, conf.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return m, nil
	case cfg.RecordsSQLite:
		db, err := records.OpenSQLite(ctx, conf.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case cfg.RecordsMemory:
		return records.NewMemory(), nil
	default:
		return nil, xerrors.Newf("unknown records backend %q", conf.RecordsBackend)
	}
}
