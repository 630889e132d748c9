package sync

import (
	"context"
	"crypto/md5"
	"fmt"
	"os"
	"slices"
	"strings"
	stdsync "sync"
	"time"

	"github.com/openmined/s3mirror/internal/blob"
)

// fakeBlobClient is an in-memory IBlobClient recording every mutation in
// call order.
type fakeBlobClient struct {
	mu      stdsync.Mutex
	objects map[string]*blob.BlobInfo

	listErr    error
	failPut    map[string]error
	failDelete map[string]error
	putDelay   time.Duration

	ops         []string // "PUT <key>" / "DEL <key>" in completion order
	inFlight    int
	maxInFlight int
}

func newFakeBlobClient() *fakeBlobClient {
	return &fakeBlobClient{
		objects:    make(map[string]*blob.BlobInfo),
		failPut:    make(map[string]error),
		failDelete: make(map[string]error),
	}
}

func (f *fakeBlobClient) seed(key, etag string, size int64) {
	f.objects[key] = &blob.BlobInfo{
		Key:          key,
		ETag:         etag,
		Size:         size,
		LastModified: time.Now(),
	}
}

func (f *fakeBlobClient) ListObjects(_ context.Context, prefix string) ([]*blob.BlobInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}

	var infos []*blob.BlobInfo
	for key, info := range f.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, info)
		}
	}
	slices.SortFunc(infos, func(a, b *blob.BlobInfo) int {
		return strings.Compare(a.Key, b.Key)
	})
	return infos, nil
}

func (f *fakeBlobClient) PutObjectFromFile(ctx context.Context, key string, filePath string) (*blob.PutObjectResponse, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.putDelay > 0 {
		time.Sleep(f.putDelay)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := f.failPut[key]; err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	etag := fmt.Sprintf("%x", md5.Sum(data))

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = &blob.BlobInfo{
		Key:          key,
		ETag:         etag,
		Size:         int64(len(data)),
		LastModified: time.Now(),
	}
	f.ops = append(f.ops, "PUT "+key)

	return &blob.PutObjectResponse{
		Key:          key,
		ETag:         etag,
		Size:         int64(len(data)),
		LastModified: time.Now(),
	}, nil
}

func (f *fakeBlobClient) DeleteObject(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failDelete[key]; err != nil {
		return false, err
	}

	delete(f.objects, key)
	f.ops = append(f.ops, "DEL "+key)
	return true, nil
}

func (f *fakeBlobClient) opLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.ops)
}

var _ blob.IBlobClient = (*fakeBlobClient)(nil)
