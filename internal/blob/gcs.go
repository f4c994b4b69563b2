package blob

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
)

// GCSStore stores blobs as objects in a Google Cloud Storage bucket.
// Credentials come from the ambient environment (application default
// credentials).
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCS creates a GCS blob store for the given bucket.
func NewGCS(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "blob: create gcs client")
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Download(ctx context.Context, ref string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(ref).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, eris.Wrapf(err, "blob: object %s not found", ref)
		}
		return nil, eris.Wrapf(err, "blob: open %s", ref)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: read %s", ref)
	}
	return data, nil
}

func (s *GCSStore) Upload(ctx context.Context, ref string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(ref).NewWriter(ctx)
	w.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return eris.Wrapf(err, "blob: write %s", ref)
	}
	if err := w.Close(); err != nil {
		return eris.Wrapf(err, "blob: finalize %s", ref)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
