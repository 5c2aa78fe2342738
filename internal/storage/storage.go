package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/therealutkarshpriyadarshi/videosync/internal/config"
	"github.com/therealutkarshpriyadarshi/videosync/internal/logging"
	"github.com/therealutkarshpriyadarshi/videosync/internal/metrics"
)

const (
	// DefaultPartSize is the multipart chunk used for large or unsized uploads
	DefaultPartSize = 10 * 1024 * 1024

	// MaxConcurrentParts bounds parallel part uploads
	MaxConcurrentParts = 4

	uploadPrefix = "uploads"
)

// ErrObjectNotFound is returned when a key does not exist in the bucket
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// Storage keeps uploaded video files in an S3-compatible bucket
type Storage struct {
	client     *minio.Client
	bucketName string
	logger     *logging.Logger
}

// New creates a storage client and makes sure the bucket exists
func New(ctx context.Context, cfg config.StorageConfig, logger *logging.Logger) (*Storage, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Storage{
		client:     client,
		bucketName: cfg.BucketName,
		logger:     logger.WithComponent("storage"),
	}, nil
}

// Upload stores reader under key. A negative size streams the body in
// multipart chunks.
func (s *Storage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if size < 0 || size > DefaultPartSize {
		opts.PartSize = DefaultPartSize
		opts.NumThreads = MaxConcurrentParts
	}

	start := time.Now()
	info, err := s.client.PutObject(ctx, s.bucketName, key, reader, size, opts)
	s.observe("upload", key, info.Size, start, err)
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// Open returns a reader for key and its metadata. The caller closes the reader.
func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	start := time.Now()

	object, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		s.observe("download", key, 0, start, err)
		return nil, ObjectInfo{}, fmt.Errorf("failed to download object: %w", err)
	}

	// GetObject is lazy; Stat surfaces a missing key
	stat, err := object.Stat()
	if err != nil {
		object.Close()
		s.observe("download", key, 0, start, err)
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ObjectInfo{}, ErrObjectNotFound
		}
		return nil, ObjectInfo{}, fmt.Errorf("failed to stat object: %w", err)
	}

	s.observe("download", key, stat.Size, start, nil)
	return object, ObjectInfo{
		Key:          stat.Key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}, nil
}

// Delete removes an object from the bucket
func (s *Storage) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{})
	s.observe("delete", key, 0, start, err)
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// PresignedURL returns a time-limited download URL for key
func (s *Storage) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate URL: %w", err)
	}
	return u.String(), nil
}

// Health checks that the bucket is reachable
func (s *Storage) Health(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucketName); err != nil {
		return fmt.Errorf("storage unreachable: %w", err)
	}
	return nil
}

func (s *Storage) observe(operation, key string, size int64, start time.Time, err error) {
	duration := time.Since(start)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordStorageOperation(operation, status, duration.Seconds(), size)
	s.logger.LogStorageOperation(operation, s.bucketName, key, size, duration, err)
}

// ObjectKey returns a fresh, owner-scoped key that keeps filename's extension
func ObjectKey(ownerID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join(uploadPrefix, ownerID, uuid.New().String()+ext)
}

// OwnsKey reports whether key was issued to ownerID by ObjectKey
func OwnsKey(ownerID, key string) bool {
	prefix := path.Join(uploadPrefix, ownerID) + "/"
	return ownerID != "" && strings.HasPrefix(path.Clean(key), prefix)
}

// ContentTypeFor returns the content type based on file extension
func ContentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	case ".ogv":
		return "video/ogg"
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	default:
		return "application/octet-stream"
	}
}

// IsPlayable reports whether filename has a video container browsers can play
func IsPlayable(filename string) bool {
	ct := ContentTypeFor(filename)
	return strings.HasPrefix(ct, "video/") || ct == "application/vnd.apple.mpegurl"
}
