// Package objects stores task attachments in an S3-compatible bucket.
// Clients upload and download through presigned URLs; only attachment
// metadata lives in Postgres.
package objects

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Service struct {
	client     *minio.Client
	bucket     string
	presignTTL time.Duration
}

func New(endpoint, accessKey, secretKey, bucket string, useSSL bool, presignTTL time.Duration) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	return &Service{client: client, bucket: bucket, presignTTL: presignTTL}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// PresignUpload returns a URL the client PUTs the file body to.
func (s *Service) PresignUpload(ctx context.Context, objectKey string) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, objectKey, s.presignTTL)
	if err != nil {
		return "", fmt.Errorf("presign upload: %w", err)
	}
	return u.String(), nil
}

// PresignDownload returns a URL serving the object with the original
// filename in the content disposition.
func (s *Service) PresignDownload(ctx context.Context, objectKey, fileName string) (string, error) {
	params := make(url.Values)
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, s.presignTTL, params)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return u.String(), nil
}

// Remove deletes the stored object. Missing objects are not an error.
func (s *Service) Remove(ctx context.Context, objectKey string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}
