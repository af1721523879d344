// Package blob stores task attachments in S3-compatible object storage.
// Clients upload directly through presigned URLs; the API only records
// metadata.
package blob

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	URLTTL    time.Duration
}

type Store struct {
	client *minio.Client
	bucket string
	region string
	ttl    time.Duration
}

// New builds the client without touching the network. Call EnsureBucket
// once at startup.
func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("blob store requires endpoint and bucket")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Store{client: client, bucket: cfg.Bucket, region: region, ttl: ttl}, nil
}

func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// PresignUpload returns a URL the client can PUT the object to.
func (s *Store) PresignUpload(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.ttl)
	if err != nil {
		return "", fmt.Errorf("presign upload: %w", err)
	}
	return u.String(), nil
}

// ObjectURL is the stable (unsigned) location of an object.
func (s *Store) ObjectURL(key string) string {
	endpoint := *s.client.EndpointURL()
	endpoint.Path = "/" + s.bucket + "/" + key
	return endpoint.String()
}

// ObjectKey builds a collision-free key for a task attachment.
func ObjectKey(taskID, fileName string) string {
	return path.Join("tasks", taskID, uuid.NewString()+"-"+sanitizeFileName(fileName))
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	cleaned := strings.Trim(b.String(), ".")
	if cleaned == "" {
		return "file"
	}
	return cleaned
}
