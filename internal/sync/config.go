package sync

import (
	"errors"
	"fmt"

	"github.com/openmined/s3mirror/internal/utils"
)

const DefaultMaxConcurrency = 5

// Config is the configuration of one sync run. Validate normalizes it in
// place (absolute root, canonical prefix, defaulted concurrency); after
// that it is read-only for the duration of the run.
type Config struct {
	// RootDir is the local directory being mirrored.
	RootDir string
	// Bucket is the target bucket name.
	Bucket string
	// Prefix is the key prefix inside the bucket, "" or ending with "/".
	Prefix string
	// MaxConcurrency bounds in-flight uploads.
	MaxConcurrency int
	// DryRun reports intended actions without touching the store.
	DryRun bool
	// Excludes are doublestar globs matched against relative paths.
	Excludes []string
}

func (c *Config) Validate() error {
	if c.RootDir == "" {
		return errors.New("root directory is required")
	}

	rootDir, err := utils.ResolvePath(c.RootDir)
	if err != nil {
		return fmt.Errorf("resolve root directory: %w", err)
	}
	if !utils.DirExists(rootDir) {
		return fmt.Errorf("root directory '%s' does not exist", rootDir)
	}
	c.RootDir = rootDir

	if c.Bucket == "" {
		return errors.New("bucket is required")
	}

	c.Prefix = utils.NormPrefix(c.Prefix)

	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}

	return nil
}
