package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
)

// Cleaner removes date buckets older than the retention period.
// Directories whose names are not dates are left alone.
type Cleaner struct {
	root   string
	logger arbor.ILogger
	now    func() time.Time
}

func NewCleaner(root string, logger arbor.ILogger) *Cleaner {
	return &Cleaner{
		root:   root,
		logger: logger,
		now:    time.Now,
	}
}

// Cleanup deletes buckets dated before today minus retentionDays and returns the removed paths.
// retentionDays <= 0 keeps everything.
func (c *Cleaner) Cleanup(retentionDays int) ([]string, error) {
	if retentionDays <= 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list output root %s: %w", c.root, err)
	}

	cutoff := BucketName(c.now().AddDate(0, 0, -retentionDays))

	var removed []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !IsBucketName(name) || name >= cutoff {
			continue
		}

		path := filepath.Join(c.root, name)
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		removed = append(removed, path)
	}

	c.logger.Info().
		Str("root", c.root).
		Int("retention_days", retentionDays).
		Int("removed", len(removed)).
		Msg("Result retention cleanup finished")

	return removed, nil
}
