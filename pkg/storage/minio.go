// Package storage keeps the original uploaded files in an S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
	"github.com/xhad/docqa/internal/models"
	"github.com/xhad/docqa/pkg/logger"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
	// PublicBaseURL overrides the scheme://endpoint/bucket prefix of public URLs.
	PublicBaseURL string
}

type ObjectStore struct {
	config Config
	client *minio.Client
	log    *logrus.Entry
}

// New connects to the endpoint and creates the bucket when it is missing.
func New(ctx context.Context, config Config) (*ObjectStore, error) {
	if config.Bucket == "" {
		config.Bucket = "documents"
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	s := &ObjectStore{
		config: config,
		client: client,
		log:    logger.New("storage").WithField("bucket", config.Bucket),
	}

	if err := s.ensureBucketExists(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ObjectStore) ensureBucketExists(ctx context.Context) error {
	found, err := s.client.BucketExists(ctx, s.config.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket '%s' exists: %w", s.config.Bucket, err)
	}
	if !found {
		s.log.Info("Bucket not found, creating it")
		if err := s.client.MakeBucket(ctx, s.config.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket '%s': %w", s.config.Bucket, err)
		}
	}
	return nil
}

func (s *ObjectStore) Upload(ctx context.Context, path string, body io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.config.Bucket, path, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}
	return nil
}

// Download reads a whole object. A missing object yields models.ErrNotFound.
func (s *ObjectStore) Download(ctx context.Context, path string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.config.Bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapObjectError(path, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, wrapObjectError(path, err)
	}
	return data, nil
}

func (s *ObjectStore) Remove(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.config.Bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// PublicURL is the address an anonymous client would fetch path from.
func (s *ObjectStore) PublicURL(path string) string {
	return publicURL(s.config, path)
}

func publicURL(config Config, path string) string {
	base := strings.TrimRight(config.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if config.Secure {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, config.Endpoint, url.PathEscape(config.Bucket))
	}
	return base + "/" + url.PathEscape(path)
}

func wrapObjectError(path string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", models.ErrNotFound, path)
	}
	return fmt.Errorf("failed to download file: %w", err)
}
