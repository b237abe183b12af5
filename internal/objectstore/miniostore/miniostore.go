// Package miniostore implements objectstore.Store against a MinIO (or
// S3-compatible) endpoint, provisioning the uploads/results buckets on
// startup the way the teacher's tile server provisions its tile bucket.
package miniostore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/printsplit/splitengine/internal/objectstore"
)

// Config configures the MinIO client and the two bucket names.
type Config struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	UseSSL          bool
	UploadsBucket   string
	ResultsBucket   string
}

// Store is a MinIO-backed objectstore.Store.
type Store struct {
	client  *minio.Client
	buckets map[objectstore.Bucket]string
	logger  *zap.Logger
}

var _ objectstore.Store = (*Store)(nil)

// New connects to MinIO and ensures both logical buckets exist,
// creating them if absent.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("miniostore: connecting to %s: %w", cfg.Endpoint, err)
	}

	s := &Store{
		client: client,
		logger: logger,
		buckets: map[objectstore.Bucket]string{
			objectstore.Uploads: cfg.UploadsBucket,
			objectstore.Results: cfg.ResultsBucket,
		},
	}

	for logical, name := range s.buckets {
		exists, err := client.BucketExists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("miniostore: checking bucket %q: %w", name, err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, name, minio.MakeBucketOptions{}); err != nil {
				return nil, fmt.Errorf("miniostore: creating bucket %q: %w", name, err)
			}
			logger.Info("provisioned bucket", zap.String("bucket", name), zap.String("role", string(logical)))
		}
	}

	return s, nil
}

func (s *Store) bucketName(b objectstore.Bucket) string { return s.buckets[b] }

func (s *Store) Put(ctx context.Context, bucket objectstore.Bucket, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucketName(bucket), key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("miniostore: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, bucket objectstore.Bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName(bucket), key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("miniostore: get %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, obj); err != nil {
		return nil, fmt.Errorf("miniostore: reading %s/%s: %w", bucket, key, err)
	}
	return buf.Bytes(), nil
}

func (s *Store) Exists(ctx context.Context, bucket objectstore.Bucket, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucketName(bucket), key, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("miniostore: stat %s/%s: %w", bucket, key, err)
	}
	return true, nil
}

func (s *Store) PresignGet(ctx context.Context, bucket objectstore.Bucket, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucketName(bucket), key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("miniostore: presign %s/%s: %w", bucket, key, err)
	}
	return u.String(), nil
}

func (s *Store) List(ctx context.Context, bucket objectstore.Bucket, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucketName(bucket), minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("miniostore: listing %s/%s: %w", bucket, prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *Store) Delete(ctx context.Context, bucket objectstore.Bucket, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucketName(bucket), key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("miniostore: delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *Store) DeletePrefix(ctx context.Context, bucket objectstore.Bucket, prefix string) error {
	keys, err := s.List(ctx, bucket, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Delete(ctx, bucket, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Stat(ctx context.Context, bucket objectstore.Bucket, key string) (objectstore.ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucketName(bucket), key, minio.StatObjectOptions{})
	if err != nil {
		return objectstore.ObjectInfo{}, fmt.Errorf("miniostore: stat %s/%s: %w", bucket, key, err)
	}
	return objectstore.ObjectInfo{
		Key:          key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}, nil
}
