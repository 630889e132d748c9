package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	stdsync "sync"

	"github.com/openmined/s3mirror/internal/blob"
)

type SyncOp string

const (
	OpUpload SyncOp = "UPLOAD"
	OpDelete SyncOp = "DELETE"
)

// TransferError is a single failed work item. Failures are collected, not
// propagated: one bad item never aborts its siblings.
type TransferError struct {
	Path string
	Op   SyncOp
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// TransferResult is the outcome of executing one plan.
type TransferResult struct {
	Uploaded      int
	Deleted       int
	BytesUploaded int64
	Failed        []*TransferError
	// Cancelled is set when the run was stopped early by the context:
	// in-flight uploads were allowed to finish, the rest were skipped.
	Cancelled bool
}

// Executor applies a sync plan against the store. Uploads run on a
// bounded worker pool, deletes run sequentially afterwards so a delete
// can never race an upload of the same key.
type Executor struct {
	client blob.IBlobClient
	cfg    *Config
}

func NewExecutor(client blob.IBlobClient, cfg *Config) *Executor {
	return &Executor{client: client, cfg: cfg}
}

func (e *Executor) Execute(ctx context.Context, plan *SyncPlan, local Manifest) *TransferResult {
	if e.cfg.DryRun {
		return e.executeDryRun(plan)
	}

	result := &TransferResult{}

	e.executeUploads(ctx, plan.Uploads, local, result)

	// deletes only start once the upload phase has fully drained
	e.executeDeletes(ctx, plan.Deletes, result)

	if ctx.Err() != nil {
		result.Cancelled = true
	}

	return result
}

// executeDryRun reports the same decisions a real run would act on,
// without touching the store.
func (e *Executor) executeDryRun(plan *SyncPlan) *TransferResult {
	for _, path := range plan.Uploads {
		slog.Info("sync", "op", "WOULD UPLOAD", "key", e.remoteKey(path))
	}
	for _, path := range plan.Deletes {
		slog.Info("sync", "op", "WOULD DELETE", "key", e.remoteKey(path))
	}
	return &TransferResult{
		Uploaded: len(plan.Uploads),
		Deleted:  len(plan.Deletes),
	}
}

type uploadOutcome struct {
	path  string
	bytes int64
	err   error
}

func (e *Executor) executeUploads(ctx context.Context, uploads []string, local Manifest, result *TransferResult) {
	if len(uploads) == 0 {
		return
	}

	workers := min(e.cfg.MaxConcurrency, len(uploads))

	pathsChan := make(chan string, len(uploads))
	outcomes := make(chan uploadOutcome, len(uploads))

	var wg stdsync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case path, ok := <-pathsChan:
					if !ok {
						return
					}
					// the select picks randomly when both channels are
					// ready, so re-check before dispatching: items still
					// queued at cancellation are skipped, not failed
					if ctx.Err() != nil {
						slog.Warn("sync", "op", OpUpload, "key", e.remoteKey(path), "skipped", "cancelled")
						continue
					}
					outcomes <- e.processUpload(ctx, path, local)
				}
			}
		}()
	}

	for _, path := range uploads {
		pathsChan <- path
	}
	close(pathsChan)

	wg.Wait()
	close(outcomes)

	// single collector, serialized after the pool drains
	for outcome := range outcomes {
		if outcome.err != nil {
			// an upload interrupted mid-flight by cancellation is part of
			// the cancelled outcome, not a transfer failure
			if errors.Is(outcome.err, context.Canceled) || errors.Is(outcome.err, context.DeadlineExceeded) {
				continue
			}
			result.Failed = append(result.Failed, &TransferError{Path: outcome.path, Op: OpUpload, Err: outcome.err})
			continue
		}
		result.Uploaded++
		result.BytesUploaded += outcome.bytes
	}
}

func (e *Executor) processUpload(ctx context.Context, path string, local Manifest) uploadOutcome {
	key := e.remoteKey(path)
	localPath := e.localPath(path)

	resp, err := e.client.PutObjectFromFile(ctx, key, localPath)
	if err != nil {
		slog.Error("sync", "op", OpUpload, "key", key, "error", err)
		return uploadOutcome{path: path, err: err}
	}

	slog.Info("sync", "op", OpUpload, "key", key, "etag", resp.ETag, "size", resp.Size)
	return uploadOutcome{path: path, bytes: resp.Size}
}

func (e *Executor) executeDeletes(ctx context.Context, deletes []string, result *TransferResult) {
	for _, path := range deletes {
		if ctx.Err() != nil {
			slog.Warn("sync", "op", OpDelete, "key", e.remoteKey(path), "skipped", "cancelled")
			continue
		}

		key := e.remoteKey(path)
		if _, err := e.client.DeleteObject(ctx, key); err != nil {
			slog.Error("sync", "op", OpDelete, "key", key, "error", err)
			result.Failed = append(result.Failed, &TransferError{Path: path, Op: OpDelete, Err: err})
			continue
		}

		slog.Info("sync", "op", OpDelete, "key", key)
		result.Deleted++
	}
}

func (e *Executor) remoteKey(path string) string {
	return e.cfg.Prefix + path
}

func (e *Executor) localPath(path string) string {
	return filepath.Join(e.cfg.RootDir, filepath.FromSlash(path))
}
