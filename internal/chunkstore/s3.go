package chunkstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Backend struct {
	client      *minio.Client
	bucket      string
	externalURL string
}

func NewS3Backend(config *BackendConfig) (*S3Backend, error) {
	client, err := minio.New(config.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.S3AccessKey, config.S3SecretKey, ""),
		Secure: config.S3UseSSL,
		Region: config.S3Region,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, config.S3Bucket)
	if err != nil {
		return nil, err
	}

	if !exists {
		if err := client.MakeBucket(ctx, config.S3Bucket, minio.MakeBucketOptions{Region: config.S3Region}); err != nil {
			return nil, err
		}
	}

	return &S3Backend{
		client:      client,
		bucket:      config.S3Bucket,
		externalURL: config.ExternalURL,
	}, nil
}

func (b *S3Backend) Store(ctx context.Context, path string, reader io.Reader) error {
	_, err := b.client.PutObject(ctx, b.bucket, path, reader, -1, minio.PutObjectOptions{})
	return err
}

func (b *S3Backend) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}

	_, err = obj.Stat()
	if err != nil {
		errResponse := minio.ToErrorResponse(err)
		if errResponse.Code == "NoSuchKey" {
			return nil, fmt.Errorf("blob not found: %s", path)
		}
		return nil, err
	}

	return obj, nil
}

func (b *S3Backend) Delete(ctx context.Context, path string) error {
	return b.client.RemoveObject(ctx, b.bucket, path, minio.RemoveObjectOptions{})
}

func (b *S3Backend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		errResponse := minio.ToErrorResponse(err)
		if errResponse.Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *S3Backend) GetURL(ctx context.Context, path string) (string, error) {
	presignedURL, err := b.client.PresignedGetObject(ctx, b.bucket, path, time.Hour, nil)
	if err != nil {
		return "", err
	}
	return presignedURL.String(), nil
}
