package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
}

func manifestFor(paths ...string) Manifest {
	m := make(Manifest)
	for _, p := range paths {
		m[p] = &FileMetadata{Path: p}
	}
	return m
}

func testConfig(root string) *Config {
	return &Config{
		RootDir:        root,
		Bucket:         "test-bucket",
		Prefix:         "data/",
		MaxConcurrency: 3,
	}
}

func TestExecutorUploadsAndDeletes(t *testing.T) {
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{
		"a.txt":     "alpha",
		"sub/b.txt": "beta",
	})

	client := newFakeBlobClient()
	client.seed("data/stale.txt", "d3", 5)

	ex := NewExecutor(client, testConfig(root))
	plan := &SyncPlan{
		Uploads: []string{"a.txt", "sub/b.txt"},
		Deletes: []string{"stale.txt"},
	}

	result := ex.Execute(context.Background(), plan, manifestFor("a.txt", "sub/b.txt"))

	assert.Equal(t, 2, result.Uploaded)
	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, result.Failed)
	assert.False(t, result.Cancelled)
	assert.EqualValues(t, len("alpha")+len("beta"), result.BytesUploaded)

	assert.Contains(t, client.objects, "data/a.txt")
	assert.Contains(t, client.objects, "data/sub/b.txt")
	assert.NotContains(t, client.objects, "data/stale.txt")
}

func TestExecutorDryRunDoesNotMutate(t *testing.T) {
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{"a.txt": "alpha"})

	client := newFakeBlobClient()
	client.seed("data/orphan.txt", "d9", 3)

	cfg := testConfig(root)
	cfg.DryRun = true

	ex := NewExecutor(client, cfg)
	plan := &SyncPlan{
		Uploads: []string{"a.txt"},
		Deletes: []string{"orphan.txt"},
	}

	result := ex.Execute(context.Background(), plan, manifestFor("a.txt"))

	// counts reflect intents, the store is untouched
	assert.Equal(t, 1, result.Uploaded)
	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, client.opLog())
	assert.Contains(t, client.objects, "data/orphan.txt")
	assert.NotContains(t, client.objects, "data/a.txt")
}

func TestExecutorFailureIsolation(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{}
	var uploads []string
	for i := 0; i < 6; i++ {
		p := fmt.Sprintf("f%d.txt", i)
		files[p] = fmt.Sprintf("content-%d", i)
		uploads = append(uploads, p)
	}
	writeTestFiles(t, root, files)

	client := newFakeBlobClient()
	client.failPut["data/f3.txt"] = errors.New("engineered failure")

	ex := NewExecutor(client, testConfig(root))
	result := ex.Execute(context.Background(), &SyncPlan{Uploads: uploads}, manifestFor(uploads...))

	assert.Equal(t, 5, result.Uploaded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "f3.txt", result.Failed[0].Path)
	assert.Equal(t, OpUpload, result.Failed[0].Op)
	assert.ErrorContains(t, result.Failed[0], "engineered failure")
}

func TestExecutorDeleteFailureIsolation(t *testing.T) {
	root := t.TempDir()
	client := newFakeBlobClient()
	client.seed("data/x.txt", "d1", 1)
	client.seed("data/y.txt", "d2", 1)
	client.seed("data/z.txt", "d3", 1)
	client.failDelete["data/y.txt"] = errors.New("engineered failure")

	ex := NewExecutor(client, testConfig(root))
	result := ex.Execute(context.Background(), &SyncPlan{Deletes: []string{"x.txt", "y.txt", "z.txt"}}, Manifest{})

	assert.Equal(t, 2, result.Deleted)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "y.txt", result.Failed[0].Path)
	assert.Equal(t, OpDelete, result.Failed[0].Op)
	assert.Contains(t, client.objects, "data/y.txt")
}

func TestExecutorDeletesAfterUploads(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{}
	var uploads []string
	for i := 0; i < 8; i++ {
		p := fmt.Sprintf("u%d.txt", i)
		files[p] = "x"
		uploads = append(uploads, p)
	}
	writeTestFiles(t, root, files)

	client := newFakeBlobClient()
	client.putDelay = 5 * time.Millisecond
	client.seed("data/old1.txt", "d1", 1)
	client.seed("data/old2.txt", "d2", 1)

	ex := NewExecutor(client, testConfig(root))
	ex.Execute(context.Background(), &SyncPlan{
		Uploads: uploads,
		Deletes: []string{"old1.txt", "old2.txt"},
	}, manifestFor(uploads...))

	ops := client.opLog()
	require.Len(t, ops, 10)
	lastPut := 0
	firstDel := len(ops)
	for i, op := range ops {
		if strings.HasPrefix(op, "PUT ") {
			lastPut = i
		} else if i < firstDel {
			firstDel = i
		}
	}
	assert.Less(t, lastPut, firstDel, "every delete must come after the last upload")
}

func TestExecutorBoundedConcurrency(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{}
	var uploads []string
	for i := 0; i < 12; i++ {
		p := fmt.Sprintf("c%d.txt", i)
		files[p] = "x"
		uploads = append(uploads, p)
	}
	writeTestFiles(t, root, files)

	client := newFakeBlobClient()
	client.putDelay = 10 * time.Millisecond

	cfg := testConfig(root)
	cfg.MaxConcurrency = 3

	ex := NewExecutor(client, cfg)
	result := ex.Execute(context.Background(), &SyncPlan{Uploads: uploads}, manifestFor(uploads...))

	assert.Equal(t, 12, result.Uploaded)
	assert.LessOrEqual(t, client.maxInFlight, 3)
	assert.Greater(t, client.maxInFlight, 1, "pool should actually run uploads in parallel")
}

func TestExecutorCancellationNotReportedAsFailure(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{}
	var uploads []string
	for i := 0; i < 40; i++ {
		p := fmt.Sprintf("q%d.txt", i)
		files[p] = "x"
		uploads = append(uploads, p)
	}
	writeTestFiles(t, root, files)

	// the select between ctx.Done() and the full work channel is a coin
	// flip per iteration, so run several times
	for i := 0; i < 5; i++ {
		client := newFakeBlobClient()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ex := NewExecutor(client, testConfig(root))
		result := ex.Execute(ctx, &SyncPlan{Uploads: uploads}, manifestFor(uploads...))

		assert.True(t, result.Cancelled)
		assert.Equal(t, 0, result.Uploaded)
		assert.Empty(t, result.Failed, "items pending at cancellation are skipped, never failed")
		assert.Empty(t, client.opLog())
	}
}

func TestExecutorCancellationSkipsDeletes(t *testing.T) {
	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{"a.txt": "alpha"})

	client := newFakeBlobClient()
	client.seed("data/orphan.txt", "d9", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := NewExecutor(client, testConfig(root))
	result := ex.Execute(ctx, &SyncPlan{
		Uploads: []string{"a.txt"},
		Deletes: []string{"orphan.txt"},
	}, manifestFor("a.txt"))

	assert.True(t, result.Cancelled)
	assert.Equal(t, 0, result.Deleted)
	for _, op := range client.opLog() {
		assert.False(t, strings.HasPrefix(op, "DEL "), "no delete may run after cancellation")
	}
	assert.Contains(t, client.objects, "data/orphan.txt")
}
