// -----------------------------------------------------------------------
// Artifact Resolver - locates the latest result by output layout convention
// -----------------------------------------------------------------------

package artifacts

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/ternarybob/arbor"
)

// Resolver finds results under <root>/<yyyy-mm-dd>/<name> when no direct handle was kept.
// Only the newest date bucket is inspected; it never merges across days and never writes.
type Resolver struct {
	reportExt string
	logger    arbor.ILogger
}

// NewResolver creates a resolver appending reportExt (e.g. ".html") to base names
func NewResolver(reportExt string, logger arbor.ILogger) *Resolver {
	return &Resolver{
		reportExt: reportExt,
		logger:    logger,
	}
}

// Resolve returns the report for baseName in the newest bucket under root
func (r *Resolver) Resolve(root, baseName string) (string, bool) {
	if baseName == "" {
		return "", false
	}
	return r.ResolveFile(root, baseName+r.reportExt)
}

// ResolveFile returns fileName in the newest bucket under root if it exists there
func (r *Resolver) ResolveFile(root, fileName string) (string, bool) {
	bucket, ok := r.LatestBucket(root)
	if !ok {
		return "", false
	}

	candidate := filepath.Join(bucket, fileName)
	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		r.logger.Debug().
			Str("bucket", bucket).
			Str("file", fileName).
			Msg("Artifact not present in latest bucket")
		return "", false
	}

	return candidate, true
}

// LatestBucket returns the lexicographically greatest subdirectory of root
func (r *Resolver) LatestBucket(root string) (string, bool) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn().Err(err).Str("root", root).Msg("Failed to list output root")
		}
		return "", false
	}

	dirs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	if len(dirs) == 0 {
		return "", false
	}

	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	return filepath.Join(root, dirs[0]), true
}
