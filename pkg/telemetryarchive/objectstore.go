package telemetryarchive

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
)

// The interfaces below abstract the Google Cloud Storage client so the
// uploader can be unit tested against an in-memory implementation.

// ObjectStorageClient abstracts the top-level *storage.Client.
type ObjectStorageClient interface {
	Bucket(name string) BucketHandle
}

// BucketHandle abstracts a *storage.BucketHandle.
type BucketHandle interface {
	Object(name string) ObjectHandle
}

// ObjectHandle abstracts a *storage.ObjectHandle.
type ObjectHandle interface {
	NewWriter(ctx context.Context) io.WriteCloser
}

// NewStorageClientAdapter wraps a concrete *storage.Client so it conforms to
// the ObjectStorageClient interface.
func NewStorageClientAdapter(client *storage.Client) ObjectStorageClient {
	if client == nil {
		return nil
	}
	return &storageClientAdapter{client: client}
}

type storageClientAdapter struct {
	client *storage.Client
}

func (a *storageClientAdapter) Bucket(name string) BucketHandle {
	return &bucketHandleAdapter{handle: a.client.Bucket(name)}
}

type bucketHandleAdapter struct {
	handle *storage.BucketHandle
}

func (a *bucketHandleAdapter) Object(name string) ObjectHandle {
	return &objectHandleAdapter{handle: a.handle.Object(name)}
}

type objectHandleAdapter struct {
	handle *storage.ObjectHandle
}

func (a *objectHandleAdapter) NewWriter(ctx context.Context) io.WriteCloser {
	return a.handle.NewWriter(ctx)
}
