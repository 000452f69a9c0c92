package storage

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

type GCSAudioStore struct {
	client *gcs.Client
	bucket string
}

func NewGCSAudioStore(ctx context.Context, bucket string) (*GCSAudioStore, error) {
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSAudioStore{client: c, bucket: bucket}, nil
}

func (s *GCSAudioStore) Close() error { return s.client.Close() }

func (s *GCSAudioStore) objectURL(name string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, name)
}

func (s *GCSAudioStore) Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (string, error) {
	obj := s.client.Bucket(s.bucket).Object(objectName)

	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	return s.objectURL(objectName), nil
}

func (s *GCSAudioStore) List(ctx context.Context, prefix string) ([]string, error) {
	var urls []string

	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		urls = append(urls, s.objectURL(attrs.Name))
	}
	return urls, nil
}
