// Package blob reads the raw CSV exports from object storage.
//
// A Store only needs to list and read objects; every backend (Azure Blob,
// Google Cloud Storage, Amazon S3, a local directory) implements the same two
// methods, and Stage copies a listing into a local staging directory for the
// loader to pick up.
package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/sakif/retail-analytics/internal/apperror"
)

// Object describes one stored blob.
type Object struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Store is a read-only view of one container or bucket.
type Store interface {
	// List returns every object whose name starts with prefix.
	List(ctx context.Context, prefix string) ([]Object, error)
	// Open streams one object. A missing object is apperror.ErrNotFound.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Close() error
}

// New picks a backend from the connection value:
//
//	DefaultEndpointsProtocol=...;AccountName=...  Azure Blob Storage, container = container
//	gs://bucket                                   Google Cloud Storage
//	s3://bucket?region=eu-west-1                  Amazon S3
//	file:///srv/blobs or /srv/blobs               local directory; container is a subdirectory
//
// For gs:// and s3:// the container is used as the bucket when the URL
// names none.
func New(ctx context.Context, connection, container string) (Store, error) {
	connection = strings.TrimSpace(connection)
	switch {
	case connection == "":
		return nil, apperror.ValidationFailed("blob.connection", "blob storage is not configured")

	case isAzureConnectionString(connection):
		if container == "" {
			return nil, apperror.ValidationFailed("blob.container", "container name is required")
		}
		return NewAzure(connection, container)

	case strings.HasPrefix(connection, "gs://"):
		bucket, err := bucketFromURL(connection, container)
		if err != nil {
			return nil, err
		}
		return NewGCS(ctx, bucket)

	case strings.HasPrefix(connection, "s3://"):
		bucket, err := bucketFromURL(connection, container)
		if err != nil {
			return nil, err
		}
		u, _ := url.Parse(connection)
		return NewS3(bucket, u.Query().Get("region"))

	default:
		dir := strings.TrimPrefix(connection, "file://")
		if container != "" {
			dir = filepath.Join(dir, container)
		}
		return NewLocal(dir), nil
	}
}

func isAzureConnectionString(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "defaultendpointsprotocol=") ||
		strings.Contains(lower, "accountname=") ||
		strings.Contains(lower, "blobendpoint=")
}

func bucketFromURL(raw, container string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", apperror.ValidationFailed("blob.connection", fmt.Sprintf("invalid URL: %v", err))
	}
	if u.Host != "" {
		return u.Host, nil
	}
	if container != "" {
		return container, nil
	}
	return "", apperror.ValidationFailed("blob.connection", "bucket name is required")
}
