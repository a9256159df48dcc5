// Package media stores complaint photos in an S3-compatible bucket.
package media

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"civicfix/pkg/apperror"
	"civicfix/pkg/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MaxUploadSize is the largest photo accepted, in bytes.
const MaxUploadSize = 5 << 20

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ObjectStore is the subset of *minio.Client the uploader needs.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Upload struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type Uploader struct {
	store     ObjectStore
	bucket    string
	publicURL string
	now       func() time.Time
}

func NewUploader(store ObjectStore, bucket, publicURL string) *Uploader {
	return &Uploader{
		store:     store,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}
}

// Upload checks that r holds an image no larger than MaxUploadSize and stores it under a
// fresh key. size is the length the client declared.
func (u *Uploader) Upload(ctx context.Context, r io.Reader, size int64) (Upload, error) {
	if size <= 0 {
		return Upload{}, apperror.Validation("File is empty")
	}
	if size > MaxUploadSize {
		return Upload{}, apperror.Validation("File must be 5MB or smaller")
	}

	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return Upload{}, apperror.Validation("Failed to read file")
	}
	contentType := http.DetectContentType(head)
	ext, ok := extensions[contentType]
	if !ok {
		return Upload{}, apperror.Validation("Only JPEG, PNG, GIF and WebP images are allowed")
	}

	key := path.Join("complaints", u.now().UTC().Format("2006/01"), uuid.NewString()+ext)
	info, err := u.store.PutObject(ctx, u.bucket, key, io.LimitReader(br, size), size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Upload{}, apperror.Internal("Failed to store image", err)
	}

	return Upload{
		URL:         u.publicURL + "/" + u.bucket + "/" + key,
		Key:         key,
		ContentType: contentType,
		Size:        info.Size,
	}, nil
}

// NewClient connects to MinIO and makes sure the bucket exists and is publicly readable.
func NewClient(ctx context.Context, cfg config.MinIO) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		if err := client.SetBucketPolicy(ctx, cfg.Bucket, publicReadPolicy(cfg.Bucket)); err != nil {
			return nil, fmt.Errorf("failed to set bucket policy: %w", err)
		}
	}
	return client, nil
}

// PublicURL is the base URL photos are served from.
func PublicURL(cfg config.MinIO) string {
	if cfg.PublicURL != "" {
		return cfg.PublicURL
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + cfg.Endpoint
}

func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}
