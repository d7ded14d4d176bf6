package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

const (
	metaChecksum     = "Checksum"
	metaOriginalName = "Original-Name"
	metaUploadedBy   = "Uploaded-By"
)

// S3Storage implements Storage on an S3-compatible bucket.
type S3Storage struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Storage connects to the bucket, creating it when missing.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires endpoint and bucket")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &S3Storage{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *S3Storage) objectName(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *S3Storage) keyOf(objectName string) string {
	if s.prefix == "" {
		return objectName
	}
	return strings.TrimPrefix(objectName, s.prefix+"/")
}

func (s *S3Storage) Put(ctx context.Context, key string, content []byte, metadata *Metadata) error {
	opts := minio.PutObjectOptions{
		UserMetadata: map[string]string{metaChecksum: ComputeChecksum(content)},
	}
	if metadata != nil {
		opts.ContentType = metadata.ContentType
		if metadata.OriginalName != "" {
			opts.UserMetadata[metaOriginalName] = metadata.OriginalName
		}
		if metadata.UploadedBy != 0 {
			opts.UserMetadata[metaUploadedBy] = strconv.FormatInt(metadata.UploadedBy, 10)
		}
		for k, v := range metadata.Custom {
			opts.UserMetadata[k] = v
		}
	}

	_, err := s.client.PutObject(ctx, s.bucket, s.objectName(key), bytes.NewReader(content), int64(len(content)), opts)
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *S3Storage) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translate(key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.translate(key, err)
	}
	return data, nil
}

func (s *S3Storage) GetInfo(ctx context.Context, key string) (*FileInfo, error) {
	stat, err := s.client.StatObject(ctx, s.bucket, s.objectName(key), minio.StatObjectOptions{})
	if err != nil {
		return nil, s.translate(key, err)
	}

	meta := &Metadata{
		ContentType:  stat.ContentType,
		OriginalName: lookupMeta(stat.UserMetadata, metaOriginalName),
		UploadedAt:   stat.LastModified,
	}
	if by := lookupMeta(stat.UserMetadata, metaUploadedBy); by != "" {
		meta.UploadedBy, _ = strconv.ParseInt(by, 10, 64)
	}

	checksum := lookupMeta(stat.UserMetadata, metaChecksum)
	if checksum == "" {
		checksum = stat.ETag
	}

	return &FileInfo{
		Key:         key,
		Size:        stat.Size,
		Checksum:    checksum,
		ContentType: stat.ContentType,
		ModifiedAt:  stat.LastModified,
		Metadata:    meta,
	}, nil
}

func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, s.objectName(key), minio.StatObjectOptions{})
	if err != nil {
		if errors.Is(s.translate(key, err), ErrObjectNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("stat object %s: %w", key, err)
	}
	return true, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, s.objectName(key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.objectName(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		keys = append(keys, s.keyOf(obj.Key))
	}
	return keys, nil
}

func (s *S3Storage) GetChecksum(ctx context.Context, key string) (string, error) {
	info, err := s.GetInfo(ctx, key)
	if err != nil {
		return "", err
	}
	return info.Checksum, nil
}

// PresignedURL returns a temporary download URL for the key.
func (s *S3Storage) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, s.objectName(key), ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func (s *S3Storage) translate(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return fmt.Errorf("s3 %s: %w", key, err)
}

func lookupMeta(m map[string]string, name string) string {
	for k, v := range m {
		if strings.EqualFold(k, name) || strings.EqualFold(k, "X-Amz-Meta-"+name) {
			return v
		}
	}
	return ""
}
