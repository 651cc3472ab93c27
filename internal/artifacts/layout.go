package artifacts

import (
	"path/filepath"
	"strings"
	"time"
)

// BucketLayout is the date format of bucket directory names. Lexicographic order equals chronological order.
const BucketLayout = "2006-01-02"

// BucketName returns the date bucket directory name for t
func BucketName(t time.Time) string {
	return t.Format(BucketLayout)
}

// IsBucketName reports whether name is a date bucket directory name
func IsBucketName(name string) bool {
	_, err := time.Parse(BucketLayout, name)
	return err == nil
}

// BaseName strips the directory and the extension: /in/flow.v2.json -> flow.v2
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
