package sync

import (
	"log/slog"
	"strings"
)

// SyncPlan is the ordered work produced by one reconciliation. Uploads and
// Deletes are sorted lexicographically so a plan is reproducible for a
// given pair of manifests.
type SyncPlan struct {
	Uploads   []string
	Deletes   []string
	Unchanged []string
}

func (p *SyncPlan) HasChanges() bool {
	return len(p.Uploads) > 0 || len(p.Deletes) > 0
}

// Reconcile compares the local and remote manifests and partitions every
// path into exactly one of: current, missing remotely (upload), changed
// (upload), or orphaned remotely (delete). It is a pure classification
// step with no side effects beyond logging each decision.
//
// Equal integrity tags are assumed to mean equal content. Multipart
// uploads break that assumption: their tags are composite digests, not a
// content MD5. Those keys (tag contains "-") fall back to a size
// comparison rather than always classifying as changed.
func Reconcile(local, remote Manifest) *SyncPlan {
	plan := &SyncPlan{}

	// iterating sorted keys keeps both the decision log and the plan
	// deterministic for a given pair of manifests
	for _, path := range local.Paths() {
		localMeta := local[path]
		remoteMeta, ok := remote[path]
		switch {
		case !ok:
			slog.Info("plan", "op", "upload", "reason", "missing remote", "path", path)
			plan.Uploads = append(plan.Uploads, path)
		case hasChanged(localMeta, remoteMeta):
			slog.Info("plan", "op", "upload", "reason", "changed", "path", path)
			plan.Uploads = append(plan.Uploads, path)
		default:
			slog.Info("plan", "op", "none", "reason", "current", "path", path)
			plan.Unchanged = append(plan.Unchanged, path)
		}
	}

	for _, path := range remote.Paths() {
		if _, ok := local[path]; !ok {
			slog.Info("plan", "op", "delete", "reason", "orphaned remote", "path", path)
			plan.Deletes = append(plan.Deletes, path)
		}
	}

	return plan
}

func hasChanged(local, remote *FileMetadata) bool {
	if isMultipartETag(remote.ETag) {
		return local.Size != remote.Size
	}
	return local.ETag != remote.ETag
}

// isMultipartETag reports whether an integrity tag is a composite
// multipart digest ("<md5>-<parts>") rather than a plain content MD5.
func isMultipartETag(etag string) bool {
	return strings.Contains(etag, "-")
}
