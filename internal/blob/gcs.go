package blob

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
)

// GCSStorage implements Client using Google Cloud Storage.
type GCSStorage struct {
	client *gcs.Client
	bucket string
}

// NewGCSStorage creates a GCS-backed Client.
// It uses Application Default Credentials (works with Workload Identity, SA keys, gcloud auth).
func NewGCSStorage(ctx context.Context, bucket string) (*GCSStorage, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStorage{client: client, bucket: bucket}, nil
}

func (s *GCSStorage) put(ctx context.Context, key, contentType string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %s: %w", key, err)
	}
	return nil
}

func (s *GCSStorage) get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *GCSStorage) PutRun(ctx context.Context, product, runID string, data []byte) error {
	return s.put(ctx, RunRef(product, runID), "application/json", data)
}

func (s *GCSStorage) GetRun(ctx context.Context, product, runID string) ([]byte, error) {
	return s.get(ctx, RunRef(product, runID))
}

func (s *GCSStorage) PutReport(ctx context.Context, product, runID string, data []byte) error {
	return s.put(ctx, product+"/reports/"+runID+".md", "text/markdown", data)
}

func (s *GCSStorage) GetReport(ctx context.Context, product, runID string) ([]byte, error) {
	return s.get(ctx, product+"/reports/"+runID+".md")
}
