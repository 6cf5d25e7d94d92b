package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Backend stores blobs in an S3-compatible bucket. A single PutObject is
// atomic from a reader's point of view.
type S3Backend struct {
	client *minio.Client
	bucket string

	ensureOnce sync.Once
	ensureErr  error
}

func NewS3Backend(opts S3Options) (*S3Backend, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &S3Backend{client: client, bucket: strings.TrimSpace(opts.Bucket)}, nil
}

func (b *S3Backend) EnsureBucket(ctx context.Context) error {
	b.ensureOnce.Do(func() {
		exists, err := b.client.BucketExists(ctx, b.bucket)
		if err != nil {
			b.ensureErr = err
			return
		}
		if exists {
			return
		}
		b.ensureErr = b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{})
	})
	if b.ensureErr != nil {
		return fmt.Errorf("ensure s3 bucket %q: %w", b.bucket, b.ensureErr)
	}
	return nil
}

// Put buffers the body (bounded by maxBytes) so limit and emptiness checks
// happen before anything reaches the bucket.
func (b *S3Backend) Put(ctx context.Context, keys KeyFunc, body io.Reader, maxBytes int64) (PutResult, error) {
	if err := b.EnsureBucket(ctx); err != nil {
		return PutResult{}, err
	}
	var buf bytes.Buffer
	sniff := newSniffer(body)
	size, err := copyLimited(&buf, sniff, maxBytes)
	if err != nil {
		return PutResult{}, err
	}
	contentType := sniff.ContentType()

	for range MaxKeyAttempts {
		key := keys()
		if err := ValidateKey(key); err != nil {
			return PutResult{}, err
		}
		_, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
		if err == nil {
			continue
		}
		if !isNoSuchKey(err) {
			return PutResult{}, fmt.Errorf("stat s3 object: %w", err)
		}
		if _, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(buf.Bytes()), size, minio.PutObjectOptions{
			ContentType: contentType,
		}); err != nil {
			return PutResult{}, fmt.Errorf("put object to s3: %w", err)
		}
		return PutResult{Key: key, Size: size, ContentType: contentType}, nil
	}
	return PutResult{}, ErrExists
}

func (b *S3Backend) Open(ctx context.Context, key string) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get s3 object: %w", err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat s3 object: %w", err)
	}
	return &Object{Body: obj, Size: info.Size, ModTime: info.LastModified}, nil
}

func (b *S3Backend) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("delete s3 object: %w", err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
