package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/openmined/s3mirror/internal/blob"
)

const lockFileName = ".s3mirror.lock"

var ErrSyncAlreadyRunning = errors.New("another sync is already running against this root")

// SyncResult is the completion report of one run.
type SyncResult struct {
	*TransferResult
	Unchanged    int
	SkippedLocal []*FileError
	Duration     time.Duration
}

// SyncEngine drives one convergence run: build both manifests, reconcile,
// transfer, report.
type SyncEngine struct {
	cfg         *Config
	localState  *LocalState
	remoteState *RemoteState
	executor    *Executor
	lock        *flock.Flock
}

func NewSyncEngine(cfg *Config, client blob.IBlobClient) (*SyncEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sync config: %w", err)
	}

	ignore, err := NewIgnoreList(cfg.RootDir, cfg.Excludes)
	if err != nil {
		return nil, err
	}
	ignore.Load()

	localState, err := NewLocalState(cfg.RootDir, ignore)
	if err != nil {
		return nil, err
	}

	return &SyncEngine{
		cfg:         cfg,
		localState:  localState,
		remoteState: NewRemoteState(client, cfg.Prefix, ignore),
		executor:    NewExecutor(client, cfg),
		lock:        flock.New(filepath.Join(cfg.RootDir, lockFileName)),
	}, nil
}

// Run performs one full sync. A remote listing failure aborts before any
// transfer is attempted; per-item failures are collected into the result
// instead of failing the run.
func (se *SyncEngine) Run(ctx context.Context) (*SyncResult, error) {
	locked, err := se.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !locked {
		return nil, ErrSyncAlreadyRunning
	}
	defer se.lock.Unlock()

	tStart := time.Now()
	slog.Info("sync start", "root", se.cfg.RootDir, "bucket", se.cfg.Bucket, "prefix", se.cfg.Prefix, "dryRun", se.cfg.DryRun)

	// the two manifest builds are independent of each other
	var local, remote Manifest
	var skipped []*FileError

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		local, skipped, err = se.localState.Scan()
		if err != nil {
			return fmt.Errorf("scan local state: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		remote, err = se.remoteState.Fetch(gctx)
		if err != nil {
			return fmt.Errorf("fetch remote state: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	tManifests := time.Since(tStart)

	tReconcile := time.Now()
	plan := Reconcile(local, remote)
	tsReconcile := time.Since(tReconcile)
	slog.Info("plan ready",
		"uploads", len(plan.Uploads),
		"deletes", len(plan.Deletes),
		"unchanged", len(plan.Unchanged),
		"localFiles", len(local),
		"remoteObjects", len(remote),
	)

	transfer := se.executor.Execute(ctx, plan, local)

	result := &SyncResult{
		TransferResult: transfer,
		Unchanged:      len(plan.Unchanged),
		SkippedLocal:   skipped,
		Duration:       time.Since(tStart),
	}

	slog.Info("sync done",
		"uploaded", transfer.Uploaded,
		"deleted", transfer.Deleted,
		"unchanged", result.Unchanged,
		"failed", len(transfer.Failed),
		"skippedLocal", len(skipped),
		"bytesUploaded", humanize.Bytes(uint64(transfer.BytesUploaded)),
		"cancelled", transfer.Cancelled,
		"dryRun", se.cfg.DryRun,
		"tsManifests", tManifests,
		"tsReconcile", tsReconcile,
		"tsTotal", result.Duration,
	)

	return result, nil
}
