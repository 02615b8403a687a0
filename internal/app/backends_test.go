package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/themehub/internal/cfg"
	"github.com/keithlinneman/themehub/internal/log"
	"github.com/keithlinneman/themehub/internal/objstore"
	"github.com/keithlinneman/themehub/internal/records"
)

func TestLoadAWS_SkippedWithoutAWSBackends(t *testing.T) {
	c, err := LoadAWS(context.Background(), cfg.App{StoreBackend: cfg.StoreGCS, JWTSecret: "x"})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestJWTSecret_Literal(t *testing.T) {
	secret, err := JWTSecret(context.Background(), cfg.App{JWTSecret: strings.Repeat("k", 32)}, nil)
	require.NoError(t, err)
	assert.Len(t, secret, 32)

	_, err = JWTSecret(context.Background(), cfg.App{JWTSecretSSMParam: "/themehub/jwt"}, nil)
	assert.Error(t, err, "remote secret without AWS config")
}

func TestOpenObjectStore_Memory(t *testing.T) {
	conf := cfg.App{StoreBackend: cfg.StoreMemory}
	s, closeFn, err := OpenObjectStore(context.Background(), conf, nil, log.Nop(), nil)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &objstore.Instrumented{}, s)

	conf.StoreRetries = 2
	s, closeFn, err = OpenObjectStore(context.Background(), conf, nil, log.Nop(), nil)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &objstore.RetryStore{}, s)

	require.NoError(t, s.Put(context.Background(), "b", "k", strings.NewReader("v"), "text/plain"))
	info, err := s.Stat(context.Background(), "b", "k")
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.Size)
}

func TestOpenObjectStore_S3NeedsAWS(t *testing.T) {
	_, _, err := OpenObjectStore(context.Background(), cfg.App{StoreBackend: cfg.StoreS3}, nil, log.Nop(), nil)
	assert.Error(t, err)
}

func TestOpenRecords(t *testing.T) {
	r, err := OpenRecords(context.Background(), cfg.App{RecordsBackend: cfg.RecordsMemory})
	require.NoError(t, err)
	assert.IsType(t, &records.Memory{}, r)

	db, err := OpenRecords(context.Background(), cfg.App{RecordsBackend: cfg.RecordsSQLite, SQLitePath: t.TempDir() + "/themehub.db"})
	require.NoError(t, err)
	require.NoError(t, db.Ping(context.Background()))
	require.NoError(t, db.Close(context.Background()))

	_, err = OpenRecords(context.Background(), cfg.App{RecordsBackend: "redis"})
	assert.Error(t, err)
}
