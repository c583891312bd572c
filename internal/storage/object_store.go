package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore persists evidence bytes and hands back a storage key plus a
// retrievable URL. Descriptor bookkeeping lives elsewhere; this type only
// moves bytes.
type ObjectStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewObjectStore() (*ObjectStore, error) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}
	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")
	bucket := os.Getenv("MINIO_BUCKET")
	if bucket == "" {
		bucket = "civicseva-evidence"
	}
	publicURL := os.Getenv("MINIO_PUBLIC_URL")
	if publicURL == "" {
		publicURL = "http://" + endpoint
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: os.Getenv("MINIO_USE_SSL") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &ObjectStore{client: client, bucket: bucket, publicURL: publicURL}, nil
}

// Put stores one object and returns its key and public URL.
func (s *ObjectStore) Put(ctx context.Context, reader io.Reader, size int64, contentType, filename string) (string, string, error) {
	objectKey := fmt.Sprintf("evidence/%s_%s", uuid.NewString(), filename)
	_, err := s.client.PutObject(ctx, s.bucket, objectKey, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to store object: %w", err)
	}

	objectURL := fmt.Sprintf("%s/%s/%s",
		strings.TrimRight(s.publicURL, "/"),
		s.bucket,
		objectKey,
	)
	return objectKey, objectURL, nil
}

// PresignedURL returns a time-limited download link for an object key.
func (s *ObjectStore) PresignedURL(ctx context.Context, objectKey string) (string, error) {
	reqParams := make(url.Values)
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, time.Hour, reqParams)
	if err != nil {
		return "", err
	}
	return presigned.String(), nil
}
