package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/openmined/s3mirror/internal/blob"
	"github.com/openmined/s3mirror/internal/utils"
)

// RemoteState builds the remote manifest by listing the namespace prefix.
type RemoteState struct {
	client blob.IBlobClient
	prefix string
	ignore *IgnoreList
}

func NewRemoteState(client blob.IBlobClient, prefix string, ignore *IgnoreList) *RemoteState {
	return &RemoteState{
		client: client,
		prefix: utils.NormPrefix(prefix),
		ignore: ignore,
	}
}

// Fetch lists every object under the prefix and returns a manifest keyed
// by the prefix-stripped relative key. An empty listing is an empty
// manifest, not an error. Directory marker objects (keys ending in "/")
// are skipped.
func (s *RemoteState) Fetch(ctx context.Context) (Manifest, error) {
	objects, err := s.client.ListObjects(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("list remote objects: %w", err)
	}

	manifest := make(Manifest, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}

		relKey := utils.NormPath(strings.TrimPrefix(obj.Key, s.prefix))
		if relKey == "" || relKey == "." {
			continue
		}
		if s.ignore.ShouldIgnore(relKey) {
			continue
		}

		manifest[relKey] = &FileMetadata{
			Path:         relKey,
			Size:         obj.Size,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
		}
	}

	return manifest, nil
}
