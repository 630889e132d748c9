package sync

import (
	"crypto/md5"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const fingerprintCacheSize = 65536

// Fingerprint opens a file, streams its contents through MD5, and returns
// the hex digest. The digest depends only on the file bytes, never on
// name, timestamps, or permissions. Open and read failures keep their
// fs.ErrNotExist / fs.ErrPermission identity for callers to inspect.
func Fingerprint(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file '%s': %w", filePath, err)
	}
	defer file.Close()

	h := md5.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to read file contents for hashing '%s': %w", filePath, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

type fingerprintEntry struct {
	size    int64
	modTime time.Time
	digest  string
}

// FingerprintCache memoizes digests keyed by absolute path. An entry is
// only reused when size and mtime both still match, so a touched or
// rewritten file is always re-hashed.
type FingerprintCache struct {
	cache *lru.Cache[string, fingerprintEntry]
}

func NewFingerprintCache() (*FingerprintCache, error) {
	cache, err := lru.New[string, fingerprintEntry](fingerprintCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create fingerprint cache: %w", err)
	}
	return &FingerprintCache{cache: cache}, nil
}

func (c *FingerprintCache) Get(filePath string, info fs.FileInfo) (string, bool) {
	entry, ok := c.cache.Get(filePath)
	if !ok {
		return "", false
	}
	if entry.size != info.Size() || !entry.modTime.Equal(info.ModTime()) {
		return "", false
	}
	return entry.digest, true
}

func (c *FingerprintCache) Put(filePath string, info fs.FileInfo, digest string) {
	c.cache.Add(filePath, fingerprintEntry{
		size:    info.Size(),
		modTime: info.ModTime(),
		digest:  digest,
	})
}
