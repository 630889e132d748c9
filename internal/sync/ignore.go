package sync

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/openmined/s3mirror/internal/utils"
)

const ignoreFileName = ".s3mirrorignore"

var defaultIgnoreLines = []string{
	// s3mirror
	".s3mirrorignore",
	".s3mirror.lock",
	// VCS
	".git/",
	".hg/",
	".svn/",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	// General excludes
	"*.tmp",
	"*.swp",
}

// IgnoreList decides which relative paths stay out of the sync entirely.
// Rules come from built-in defaults, an optional .s3mirrorignore file in
// the root (gitignore semantics), and --exclude globs. Ignored paths are
// excluded from both manifests, so an ignored file is never uploaded and
// its remote counterpart is never treated as orphaned.
type IgnoreList struct {
	rootDir  string
	excludes []string
	ignore   *gitignore.GitIgnore
}

func NewIgnoreList(rootDir string, excludes []string) (*IgnoreList, error) {
	for _, pattern := range excludes {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern '%s'", pattern)
		}
	}
	return &IgnoreList{rootDir: rootDir, excludes: excludes}, nil
}

func (l *IgnoreList) Load() {
	ignoreLines := defaultIgnoreLines

	ignorePath := filepath.Join(l.rootDir, ignoreFileName)
	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			rules := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := scanner.Text()
				if line != "" {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}
			slog.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
		}
	}

	l.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

func (l *IgnoreList) ShouldIgnore(relPath string) bool {
	if l.ignore == nil {
		l.Load()
	}
	if l.ignore.MatchesPath(relPath) {
		return true
	}
	for _, pattern := range l.excludes {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}
