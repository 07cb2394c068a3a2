package remote

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Prashant-S29/wosh-keycore/internal/misc"
)

const fetchTimeout = 10 * time.Second

// S3Config configures an S3-compatible recovery source.
type S3Config struct {
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"-"`
	UseSSL          bool   `json:"use_ssl"`
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	KeyPrefix       string `json:"key_prefix,omitempty"`
}

// S3Source implements Source against the platform's S3-compatible bucket
// of registered key material.
//
// Object structure:
//
//	bucket/
//	└── [keyPrefix/]orgs/<orgID>/
//	    ├── org.json                   # encoded organization key record
//	    └── projects/<projectID>.json  # encoded wrapped project key records
//
// All objects are written by the registration path at organization and
// project creation time; this source only ever reads.
type S3Source struct {
	client     *minio.Client
	bucketName string
	keyPrefix  string
}

// NewS3Source initializes an S3Source and verifies the bucket exists.
func NewS3Source(config S3Config) (*S3Source, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket cannot be empty")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	src := &S3Source{
		client:     client,
		bucketName: config.Bucket,
		keyPrefix:  strings.Trim(config.KeyPrefix, "/"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", config.Bucket)
	}

	return src, nil
}

func (s *S3Source) FetchOrgKeys(ctx context.Context, orgID string) ([]byte, error) {
	if orgID == "" {
		return nil, fmt.Errorf("org ID cannot be empty")
	}
	return s.fetchObject(ctx, s.objectKey("orgs", orgID, "org.json"))
}

func (s *S3Source) FetchProjectKeys(ctx context.Context, orgID, projectID string) ([]byte, error) {
	if orgID == "" {
		return nil, fmt.Errorf("org ID cannot be empty")
	}
	if projectID == "" {
		return nil, fmt.Errorf("project ID cannot be empty")
	}
	return s.fetchObject(ctx, s.objectKey("orgs", orgID, "projects", projectID+".json"))
}

func (s *S3Source) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("remote source unreachable: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s no longer exists", s.bucketName)
	}
	return nil
}

func (s *S3Source) Close() error {
	// The MinIO client holds no connection state requiring shutdown.
	return nil
}

func (s *S3Source) objectKey(parts ...string) string {
	if s.keyPrefix != "" {
		parts = append([]string{s.keyPrefix}, parts...)
	}
	return strings.Join(parts, "/")
}

func (s *S3Source) fetchObject(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if misc.IsNotFoundError(err) {
			return nil, fmt.Errorf("record %s not found", key)
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("record %s is empty", key)
	}

	return data, nil
}
