// Package objectstore uploads reconciled product images into the store's
// MinIO bucket. Objects are keyed "<internalCode>/<file name>".
package objectstore

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/artpar/storedeploy/internal/core/deployment"
	"github.com/artpar/storedeploy/internal/core/domain"
	"github.com/artpar/storedeploy/internal/shell/images"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// =============================================================================
// Configuration
// =============================================================================

// Config describes how to reach the object store.
type Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
}

// DefaultConfig points at the loop-back port the stack publishes MinIO on.
func DefaultConfig() Config {
	return Config{
		Endpoint:  fmt.Sprintf("127.0.0.1:%d", deployment.MinioHostPort),
		AccessKey: deployment.MinioAccessKey,
		SecretKey: deployment.MinioSecretKey,
		Bucket:    deployment.ImagesBucket,
	}
}

// Validate checks the required fields.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("object store endpoint is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("object store credentials are required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("object store bucket is required")
	}
	return nil
}

// DialFunc opens network connections for the HTTP client.
// RemoteBackend.DialContext fits, tunnelling requests through SSH.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// =============================================================================
// Errors
// =============================================================================

// StorageError wraps an object store failure. It matches domain.ErrStorage.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is matches domain.ErrStorage.
func (e *StorageError) Is(target error) bool {
	return target == domain.ErrStorage
}

// =============================================================================
// Uploader
// =============================================================================

// bucketAPI is the subset of *minio.Client the uploader needs.
type bucketAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	SetBucketPolicy(ctx context.Context, bucket, policy string) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Summary counts what an upload wrote.
type Summary struct {
	Products int
	Files    int
	Bytes    int64
}

// Uploader copies product images into the images bucket.
type Uploader struct {
	api    bucketAPI
	config Config
	logger *slog.Logger
}

// NewUploader creates a MinIO uploader. When dial is nil connections are
// opened directly.
func NewUploader(config Config, dial DialFunc, logger *slog.Logger) (*Uploader, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure:    config.UseSSL,
		Region:    config.Region,
		Transport: newTransport(dial),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newUploader(client, config, logger), nil
}

func newUploader(api bucketAPI, config Config, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		api:    api,
		config: config,
		logger: logger.With("component", "image_uploader", "bucket", config.Bucket),
	}
}

func newTransport(dial DialFunc) *http.Transport {
	if dial == nil {
		dialer := &net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}
		dial = dialer.DialContext
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dial,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// EnsureBucket creates the bucket when missing and allows anonymous reads,
// so the proxy can serve images without credentials.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.api.BucketExists(ctx, u.config.Bucket)
	if err != nil {
		return &StorageError{Op: "check bucket", Key: u.config.Bucket, Err: err}
	}
	if !exists {
		if err := u.api.MakeBucket(ctx, u.config.Bucket, minio.MakeBucketOptions{Region: u.config.Region}); err != nil {
			return &StorageError{Op: "create bucket", Key: u.config.Bucket, Err: err}
		}
		u.logger.Info("bucket created")
	}
	if err := u.api.SetBucketPolicy(ctx, u.config.Bucket, PublicReadPolicy(u.config.Bucket)); err != nil {
		return &StorageError{Op: "set bucket policy", Key: u.config.Bucket, Err: err}
	}
	return nil
}

// Upload copies the images of every matched product in report from fsys.
// Existing objects with the same key are overwritten, so re-running is safe.
func (u *Uploader) Upload(ctx context.Context, fsys fs.FS, report domain.ReconciliationReport) (Summary, error) {
	if err := u.EnsureBucket(ctx); err != nil {
		return Summary{}, err
	}

	var summary Summary
	for _, code := range report.Matched() {
		files, err := images.ImageFiles(fsys, code)
		if err != nil {
			return summary, err
		}
		for _, name := range files {
			n, err := u.put(ctx, fsys, code, name)
			if err != nil {
				return summary, err
			}
			summary.Files++
			summary.Bytes += n
		}
		summary.Products++
	}

	u.logger.Info("images uploaded",
		"products", summary.Products,
		"files", summary.Files,
		"bytes", summary.Bytes,
	)
	return summary, nil
}

func (u *Uploader) put(ctx context.Context, fsys fs.FS, code, name string) (int64, error) {
	key := ObjectKey(code, name)

	f, err := fsys.Open(path.Join(code, name))
	if err != nil {
		return 0, &images.FilesystemError{Path: path.Join(code, name), Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, &images.FilesystemError{Path: path.Join(code, name), Err: err}
	}

	opts := minio.PutObjectOptions{ContentType: ContentType(name)}
	if _, err := u.api.PutObject(ctx, u.config.Bucket, key, f, info.Size(), opts); err != nil {
		return 0, &StorageError{Op: "put object", Key: key, Err: err}
	}
	return info.Size(), nil
}

// =============================================================================
// Helpers
// =============================================================================

// ObjectKey is the object name of a product image.
func ObjectKey(code, name string) string {
	return code + "/" + name
}

// ContentType guesses the MIME type from the file extension.
func ContentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// PublicReadPolicy is an S3 bucket policy granting anonymous GetObject.
func PublicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}
