// Package storage keeps the DSL model sources of deployments in an S3 compatible
// object store.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"time"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ModelContentType is stored with every model source.
const ModelContentType = "text/plain; charset=utf-8"

// ModelKey is the object key of a deployment's model source.
func ModelKey(uid string) string {
	return path.Join("models", uid, "model-"+uid+".wdsl")
}

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known, -1 otherwise.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is an S3 compatible object store. Implementations stream and never touch
// local disk.
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	// PresignGet returns a time-limited URL that can be used to download the object without credentials.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	// Ping checks that the bucket is reachable.
	Ping(ctx context.Context) error
}
