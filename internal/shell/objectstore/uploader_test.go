package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/artpar/storedeploy/internal/core/domain"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type putCall struct {
	Key         string
	Body        string
	Size        int64
	ContentType string
}

type fakeBucket struct {
	exists    bool
	created   int
	policy    string
	puts      []putCall
	existsErr error
	putErr    error
}

func (f *fakeBucket) BucketExists(context.Context, string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeBucket) MakeBucket(context.Context, string, minio.MakeBucketOptions) error {
	f.created++
	f.exists = true
	return nil
}

func (f *fakeBucket) SetBucketPolicy(_ context.Context, _ string, policy string) error {
	f.policy = policy
	return nil
}

func (f *fakeBucket) PutObject(_ context.Context, _ string, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.puts = append(f.puts, putCall{Key: key, Body: string(body), Size: size, ContentType: opts.ContentType})
	return minio.UploadInfo{Key: key, Size: size}, nil
}

func tree() fstest.MapFS {
	return fstest.MapFS{
		"A/front.jpg": {Data: []byte("jpeg-bytes")},
		"A/back.png":  {Data: []byte("png")},
		"A/notes.txt": {Data: []byte("skip")},
		"B/readme.md": {Data: []byte("skip")},
	}
}

func report() domain.ReconciliationReport {
	return domain.ReconciliationReport{
		MatchedWithImages:    1,
		MatchedWithoutImages: 1,
		TotalImageFiles:      2,
		Details: []domain.ProductImages{
			{InternalCode: "A", ImageCount: 2},
			{InternalCode: "B", ImageCount: 0},
		},
	}
}

// =============================================================================
// Upload Tests
// =============================================================================

func TestUploader_Upload(t *testing.T) {
	api := &fakeBucket{}
	u := newUploader(api, DefaultConfig(), setupTestLogger())

	summary, err := u.Upload(context.Background(), tree(), report())
	require.NoError(t, err)

	assert.Equal(t, Summary{Products: 1, Files: 2, Bytes: 13}, summary)
	assert.Equal(t, 1, api.created)
	assert.Equal(t, []putCall{
		{Key: "A/back.png", Body: "png", Size: 3, ContentType: "image/png"},
		{Key: "A/front.jpg", Body: "jpeg-bytes", Size: 10, ContentType: "image/jpeg"},
	}, api.puts)
}

func TestUploader_ExistingBucket(t *testing.T) {
	api := &fakeBucket{exists: true}
	u := newUploader(api, DefaultConfig(), setupTestLogger())

	require.NoError(t, u.EnsureBucket(context.Background()))
	assert.Zero(t, api.created)
	assert.Equal(t, PublicReadPolicy("medusa-images"), api.policy)
}

func TestUploader_StorageErrors(t *testing.T) {
	api := &fakeBucket{existsErr: errors.New("connection reset")}
	u := newUploader(api, DefaultConfig(), setupTestLogger())

	_, err := u.Upload(context.Background(), tree(), report())
	assert.True(t, errors.Is(err, domain.ErrStorage))

	api = &fakeBucket{exists: true, putErr: errors.New("quota exceeded")}
	u = newUploader(api, DefaultConfig(), setupTestLogger())

	_, err = u.Upload(context.Background(), tree(), report())
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "A/back.png", se.Key)
}

func TestUploader_MissingFolder(t *testing.T) {
	api := &fakeBucket{exists: true}
	u := newUploader(api, DefaultConfig(), setupTestLogger())

	r := report()
	r.Details = append(r.Details, domain.ProductImages{InternalCode: "Z", ImageCount: 1})
	_, err := u.Upload(context.Background(), tree(), r)
	assert.True(t, errors.Is(err, domain.ErrFilesystem))
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestPublicReadPolicy(t *testing.T) {
	var doc struct {
		Statement []struct {
			Effect   string
			Action   []string
			Resource []string
		}
	}
	require.NoError(t, json.Unmarshal([]byte(PublicReadPolicy("medusa-images")), &doc))
	require.Len(t, doc.Statement, 1)
	assert.Equal(t, "Allow", doc.Statement[0].Effect)
	assert.Equal(t, []string{"s3:GetObject"}, doc.Statement[0].Action)
	assert.Equal(t, []string{"arn:aws:s3:::medusa-images/*"}, doc.Statement[0].Resource)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/jpeg", ContentType("a.jpg"))
	assert.Equal(t, "image/png", ContentType("a.png"))
	assert.Equal(t, "application/octet-stream", ContentType("a.unknownext"))
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "127.0.0.1:9002", cfg.Endpoint)
	assert.NoError(t, cfg.Validate())

	cfg.Bucket = ""
	assert.Error(t, cfg.Validate())

	_, err := NewUploader(Config{}, nil, setupTestLogger())
	assert.Error(t, err)

	u, err := NewUploader(DefaultConfig(), nil, setupTestLogger())
	require.NoError(t, err)
	assert.NotNil(t, u)
}
