package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/sakif/retail-analytics/internal/apperror"
)

// GCS reads one Google Cloud Storage bucket. Credentials come from the
// environment (GOOGLE_APPLICATION_CREDENTIALS or the metadata server).
type GCS struct {
	client *storage.Client
	bucket string
}

func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("blob: create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) List(ctx context.Context, prefix string) ([]Object, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var objects []Object
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if errors.Is(err, storage.ErrBucketNotExist) {
				return nil, apperror.NotFound("bucket", g.bucket)
			}
			return nil, fmt.Errorf("blob: listing gs://%s: %w", g.bucket, err)
		}
		objects = append(objects, Object{Name: attrs.Name, Size: attrs.Size, ModTime: attrs.Updated})
	}
	return objects, nil
}

func (g *GCS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := g.client.Bucket(g.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, apperror.NotFound("blob", name)
		}
		return nil, fmt.Errorf("blob: open GCS object reader %s: %w", name, err)
	}
	return r, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
