package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/syllabridge-backend/internal/platform/gcp"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

var ErrNotFound = errors.New("blob not found")

// Store holds uploaded bytes between submission and a terminal job state.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete succeeds for keys that do not exist.
	Delete(ctx context.Context, key string) error
}

type Config struct {
	Backend  string // local | gcs | minio
	LocalDir string

	GCSBucket       string
	GCSEmulatorHost string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioSecure    bool
}

// New builds the configured backend.
func New(ctx context.Context, log *logger.Logger, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "local":
		return NewLocalStore(cfg.LocalDir)
	case "gcs":
		b, err := gcp.NewBucket(ctx, log, gcp.BucketConfig{Name: cfg.GCSBucket, EmulatorHost: cfg.GCSEmulatorHost})
		if err != nil {
			return nil, err
		}
		return &gcsStore{bucket: b}, nil
	case "minio", "s3":
		return NewMinioStore(ctx, log, cfg)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}

type gcsStore struct {
	bucket *gcp.Bucket
}

func (s *gcsStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return s.bucket.Put(ctx, key, data, contentType)
}

func (s *gcsStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.Get(ctx, key)
	if errors.Is(err, gcp.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *gcsStore) Delete(ctx context.Context, key string) error {
	return s.bucket.Delete(ctx, key)
}

func (s *gcsStore) Close() error { return s.bucket.Close() }
