package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/sakif/retail-analytics/internal/apperror"
)

// Azure reads one Azure Blob Storage container, addressed by an account
// connection string.
type Azure struct {
	client    *azblob.Client
	container string
}

func NewAzure(connectionString, container string) (*Azure, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, apperror.ValidationFailed("blob.connection", fmt.Sprintf("invalid Azure connection string: %v", err))
	}
	return &Azure{client: client, container: container}, nil
}

func (a *Azure) List(ctx context.Context, prefix string) ([]Object, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = &prefix
	}
	pager := a.client.NewListBlobsFlatPager(a.container, opts)

	var objects []Object
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			if bloberror.HasCode(err, bloberror.ContainerNotFound) {
				return nil, apperror.NotFound("container", a.container)
			}
			return nil, fmt.Errorf("blob: listing container %s: %w", a.container, err)
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			obj := Object{Name: *item.Name}
			if p := item.Properties; p != nil {
				if p.ContentLength != nil {
					obj.Size = *p.ContentLength
				}
				if p.LastModified != nil {
					obj.ModTime = *p.LastModified
				}
			}
			objects = append(objects, obj)
		}
	}
	return objects, nil
}

func (a *Azure) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, apperror.NotFound("blob", name)
		}
		return nil, fmt.Errorf("blob: downloading %s: %w", name, err)
	}
	return resp.Body, nil
}

func (a *Azure) Close() error { return nil }
