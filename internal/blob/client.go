package blob

import (
	"context"
	"time"
)

// IBlobClient is the narrow store surface the sync core consumes. Credential
// resolution and pagination live behind it, which keeps the core testable
// with an in-memory double.
type IBlobClient interface {
	// ListObjects returns every object whose key starts with prefix,
	// following list pagination until exhausted.
	ListObjects(ctx context.Context, prefix string) ([]*BlobInfo, error)
	// PutObjectFromFile streams the file at filePath to the given key.
	PutObjectFromFile(ctx context.Context, key string, filePath string) (*PutObjectResponse, error)
	DeleteObject(ctx context.Context, key string) (bool, error)
}

type BlobInfo struct {
	Key          string
	ETag         string
	Size         int64
	LastModified time.Time
}

type PutObjectResponse struct {
	Key          string
	ETag         string
	Size         int64
	LastModified time.Time
}
