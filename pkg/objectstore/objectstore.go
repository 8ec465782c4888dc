package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"

	"meetinghub/apperr"
)

// ObjectStore is the durable byte store behind ingest and the pipeline.
type ObjectStore interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	PutFile(ctx context.Context, objectName, localPath, contentType string) error
	FetchToFile(ctx context.Context, objectName, localPath string) error
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
	Remove(ctx context.Context, objectName string) error
}

type minioStore struct {
	client *minio.Client
	bucket string
}

func NewMinio(client *minio.Client, bucket string) ObjectStore {
	return &minioStore{client: client, bucket: bucket}
}

func (s *minioStore) Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", apperr.ErrStorage, objectName, err)
	}
	return nil
}

func (s *minioStore) PutFile(ctx context.Context, objectName, localPath, contentType string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", apperr.ErrStorage, objectName, err)
	}
	return nil
}

func (s *minioStore) FetchToFile(ctx context.Context, objectName, localPath string) error {
	if err := s.client.FGetObject(ctx, s.bucket, objectName, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("%w: fetch %s: %v", apperr.ErrStorage, objectName, err)
	}
	return nil
}

func (s *minioStore) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", apperr.ErrStorage, objectName, err)
	}
	return obj, nil
}

func (s *minioStore) Remove(ctx context.Context, objectName string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: remove %s: %v", apperr.ErrStorage, objectName, err)
	}
	return nil
}
