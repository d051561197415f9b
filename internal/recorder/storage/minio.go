package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/mikeyg42/framecoder/internal/recorder/recorderlog"
)

// MinIOStore implements ObjectStore using MinIO
type MinIOStore struct {
	client     *minio.Client
	bucket     string
	logger     *zap.Logger
	config     MinIOConfig
	uploadPool chan struct{}

	metrics MinIOMetrics
}

// MinIOConfig contains MinIO configuration
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	Region          string

	MaxUploads     int
	ConnectTimeout time.Duration

	// Retry settings (the MinIO client also retries internally)
	MaxRetries   int
	RetryBackoff time.Duration
}

// MinIOMetrics tracks MinIO operations
type MinIOMetrics struct {
	TotalUploads  atomic.Uint64
	TotalDeletes  atomic.Uint64
	UploadBytes   atomic.Uint64
	UploadErrors  atomic.Uint64
	Retries       atomic.Uint64
	ActiveUploads atomic.Int32
}

func (c *MinIOConfig) setDefaults() {
	if c.MaxUploads == 0 {
		c.MaxUploads = 4
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
}

func (c MinIOConfig) validate() error {
	if c.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if c.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	return nil
}

// NewMinIOStore connects to MinIO and creates the bucket if it is missing.
func NewMinIOStore(ctx context.Context, config MinIOConfig) (*MinIOStore, error) {
	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	store := &MinIOStore{
		client:     minioClient,
		bucket:     config.Bucket,
		logger:     recorderlog.Zap(recorderlog.L()).Named("minio-store"),
		config:     config,
		uploadPool: make(chan struct{}, config.MaxUploads),
	}
	for i := 0; i < config.MaxUploads; i++ {
		store.uploadPool <- struct{}{}
	}

	ctx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.config.Region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	s.logger.Info("Created MinIO bucket", zap.String("bucket", s.bucket))
	return nil
}

// newBackoff builds a fresh retry policy for one operation.
func (s *MinIOStore) newBackoff(ctx context.Context) backoff.BackOff {
	ebo := backoff.NewExponentialBackOff()
	if s.config.RetryBackoff > 0 {
		ebo.InitialInterval = s.config.RetryBackoff
	}
	ebo.Reset()
	var b backoff.BackOff = ebo
	if s.config.MaxRetries > 0 {
		b = backoff.WithMaxRetries(ebo, uint64(s.config.MaxRetries))
	}
	return backoff.WithContext(b, ctx)
}

// retryUpload calls put until it succeeds or the policy gives up. A
// seekable reader is rewound before each retry; anything else gets one try.
func retryUpload(policy backoff.BackOff, reader io.Reader, put func(io.Reader) error, onRetry func()) error {
	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			rs, ok := reader.(io.ReadSeeker)
			if !ok {
				return backoff.Permanent(errors.New("reader not seekable; not retrying"))
			}
			if _, err := rs.Seek(0, io.SeekStart); err != nil {
				return backoff.Permanent(fmt.Errorf("seek reset failed: %w", err))
			}
			if onRetry != nil {
				onRetry()
			}
		}
		return put(reader)
	}
	return backoff.Retry(op, policy)
}

// Put uploads an object to storage
func (s *MinIOStore) Put(ctx context.Context, key string, reader io.Reader, size int64, opts ...PutOption) error {
	options := applyPutOptions(opts)
	if options.ContentType == "" {
		options.ContentType = "application/octet-stream"
	}

	select {
	case <-s.uploadPool:
		defer func() { s.uploadPool <- struct{}{} }()
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.ActiveUploads.Add(1)
	defer s.metrics.ActiveUploads.Add(-1)

	putOpts := minio.PutObjectOptions{
		ContentType:  options.ContentType,
		UserMetadata: options.Metadata,
	}

	put := func(r io.Reader) error {
		if options.ProgressFn != nil {
			r = &progressReader{reader: r, total: size, progressFn: options.ProgressFn}
		}
		info, err := s.client.PutObject(ctx, s.bucket, key, r, size, putOpts)
		if err != nil {
			s.metrics.UploadErrors.Add(1)
			return err
		}
		s.metrics.TotalUploads.Add(1)
		s.metrics.UploadBytes.Add(uint64(info.Size))
		s.logger.Debug("Object uploaded",
			zap.String("key", key),
			zap.Int64("size", info.Size),
			zap.String("etag", info.ETag))
		return nil
	}

	if err := retryUpload(s.newBackoff(ctx), reader, put, func() { s.metrics.Retries.Add(1) }); err != nil {
		return &StorageError{
			Op:         "put",
			Key:        key,
			Err:        err,
			StatusCode: getMinioStatusCode(err),
			Retryable:  true,
		}
	}
	return nil
}

// PutFile uploads a file to storage
func (s *MinIOStore) PutFile(ctx context.Context, key, filePath string, opts ...PutOption) error {
	file, err := os.Open(filePath)
	if err != nil {
		return &StorageError{Op: "put_file", Key: key, Err: err}
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return &StorageError{Op: "put_file", Key: key, Err: err}
	}

	if applyPutOptions(opts).ContentType == "" {
		opts = append(opts, WithContentType(detectContentType(filePath)))
	}
	return s.Put(ctx, key, file, stat.Size(), opts...)
}

// Delete removes an object from storage
func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return &StorageError{Op: "delete", Key: key, Err: err, StatusCode: getMinioStatusCode(err)}
	}
	s.metrics.TotalDeletes.Add(1)
	return nil
}

// Exists checks if an object exists
func (s *MinIOStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, &StorageError{Op: "exists", Key: key, Err: err, StatusCode: getMinioStatusCode(err)}
	}
	return true, nil
}

// HealthCheck verifies the storage is accessible
func (s *MinIOStore) HealthCheck(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return &StorageError{Op: "health_check", Err: err}
	}
	if !exists {
		return &StorageError{Op: "health_check", Err: fmt.Errorf("bucket %s does not exist", s.bucket)}
	}
	return nil
}

// GetMetrics returns storage metrics
func (s *MinIOStore) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"total_uploads":  s.metrics.TotalUploads.Load(),
		"total_deletes":  s.metrics.TotalDeletes.Load(),
		"upload_bytes":   s.metrics.UploadBytes.Load(),
		"upload_errors":  s.metrics.UploadErrors.Load(),
		"retries":        s.metrics.Retries.Load(),
		"active_uploads": s.metrics.ActiveUploads.Load(),
	}
}

// progressReader reports per-read progress.
type progressReader struct {
	reader     io.Reader
	total      int64
	read       int64
	progressFn ProgressFunc
	mu         sync.Mutex
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.reader.Read(b)
	p.mu.Lock()
	p.read += int64(n)
	p.progressFn(p.read, p.total)
	p.mu.Unlock()
	return n, err
}

// detectContentType maps the extensions the encoder and metadata writers use.
func detectContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".h264", ".264":
		return "video/h264"
	case ".mjpeg", ".mjpg":
		return "video/x-motion-jpeg"
	case ".ivf", ".vp8":
		return "video/vp8"
	case ".yuv", ".i420":
		return "video/raw"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// getMinioStatusCode extracts HTTP status code from MinIO error
func getMinioStatusCode(err error) int {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode != 0 {
		return resp.StatusCode
	}
	switch resp.Code {
	case "":
		return 0
	case "NoSuchKey", "NoSuchBucket":
		return 404
	case "AccessDenied":
		return 403
	case "InvalidArgument":
		return 400
	default:
		return 500
	}
}
