// Package paths provides utilities for local paths of downloaded blobs.
package paths

import (
	"path/filepath"
	"strings"

	"github.com/fossMeDaddy/sfs-cli/internal/models"
)

// Target is a blob and the local path it will be written to.
type Target struct {
	File      *models.FsFile
	LocalPath string
}

// compoundExts are kept whole when a suffix is inserted before the extension.
var compoundExts = []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tar.zst"}

// ResolveCollisions makes every LocalPath unique. Paths are compared
// case-insensitively so downloads on macOS and Windows do not overwrite
// each other. Every colliding target gets its storage ID inserted before
// the extension:
//
//	output.zip, output.zip -> output_ABC123.zip, output_DEF456.zip
//
// Returns the number of targets that were renamed.
func ResolveCollisions(targets []Target) int {
	groups := make(map[string][]int)
	for i, t := range targets {
		key := strings.ToLower(filepath.Clean(t.LocalPath))
		groups[key] = append(groups[key], i)
	}

	renamed := 0
	for _, indices := range groups {
		if len(indices) < 2 {
			continue
		}
		renamed += len(indices)
		for _, idx := range indices {
			t := &targets[idx]
			t.LocalPath = withSuffix(t.LocalPath, t.File.StorageID)
		}
	}
	return renamed
}

// withSuffix inserts "_suffix" before p's extension.
func withSuffix(p, suffix string) string {
	ext := filepath.Ext(p)
	lower := strings.ToLower(p)
	for _, ce := range compoundExts {
		if strings.HasSuffix(lower, ce) && len(p) > len(ce) {
			ext = p[len(p)-len(ce):]
			break
		}
	}
	if ext == p || ext == filepath.Base(p) {
		ext = "" // dot-files like ".env" have no extension
	}
	return p[:len(p)-len(ext)] + "_" + suffix + ext
}
