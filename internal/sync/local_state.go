package sync

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/openmined/s3mirror/internal/utils"
)

// FileError records a file that could not be fingerprinted and was left
// out of the local manifest. The wrapped error keeps its fs.ErrNotExist /
// fs.ErrPermission identity.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// LocalState builds the local manifest by walking the sync root.
type LocalState struct {
	rootDir string
	ignore  *IgnoreList
	cache   *FingerprintCache
}

func NewLocalState(rootDir string, ignore *IgnoreList) (*LocalState, error) {
	cache, err := NewFingerprintCache()
	if err != nil {
		return nil, err
	}
	return &LocalState{
		rootDir: rootDir,
		ignore:  ignore,
		cache:   cache,
	}, nil
}

// Scan walks the root and returns a manifest of every regular file keyed
// by normalized relative path. Symlinks and special files are skipped.
// Files that cannot be read are skipped, recorded in the returned error
// list, and the scan continues; only a failure of the walk itself is
// returned as an error.
func (s *LocalState) Scan() (Manifest, []*FileError, error) {
	manifest := make(Manifest)
	var skipped []*FileError

	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk error: %w", walkErr)
		}

		relPath, err := filepath.Rel(s.rootDir, path)
		if err != nil {
			return fmt.Errorf("walk rel path: %w", err)
		}
		relPath = utils.NormPath(relPath)

		if d.IsDir() {
			if path != s.rootDir && s.ignore.ShouldIgnore(relPath+"/") {
				slog.Debug("scan", "op", "ignored", "path", relPath)
				return filepath.SkipDir
			}
			return nil
		}

		// symlinks and special files are out of scope
		if !d.Type().IsRegular() {
			slog.Debug("scan", "op", "skipped", "reason", "not a regular file", "path", relPath)
			return nil
		}

		if s.ignore.ShouldIgnore(relPath) {
			slog.Debug("scan", "op", "ignored", "path", relPath)
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("scan", "op", "skipped", "path", relPath, "error", err)
			skipped = append(skipped, &FileError{Path: relPath, Err: err})
			return nil
		}

		digest, ok := s.cache.Get(path, info)
		if !ok {
			digest, err = Fingerprint(path)
			if err != nil {
				slog.Warn("scan", "op", "skipped", "path", relPath, "error", err)
				skipped = append(skipped, &FileError{Path: relPath, Err: err})
				return nil
			}
			s.cache.Put(path, info, digest)
		}

		manifest[relPath] = &FileMetadata{
			Path:         relPath,
			Size:         info.Size(),
			ETag:         digest,
			LastModified: info.ModTime(),
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("local scan failed: %w", err)
	}

	return manifest, skipped, nil
}
