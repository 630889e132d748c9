package sync

import (
	"slices"
	"time"
)

// FileMetadata describes one file on either side of the sync. ETag is a
// hex content digest for local files and the store's integrity tag for
// remote objects.
type FileMetadata struct {
	Path         string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Manifest is a snapshot of one side of the sync: normalized relative
// path (forward slashes, no leading slash) to metadata.
type Manifest map[string]*FileMetadata

// Paths returns the manifest keys in lexicographic order.
func (m Manifest) Paths() []string {
	paths := make([]string, 0, len(m))
	for path := range m {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths
}
