// Package validation checks names that arrive from a backend before they
// are used to build local paths.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilename rejects a remote blob name that cannot be used as a
// single local path element: empty names, names with NUL bytes or path
// separators of either platform, and "..".
//
// Names like "data..v2.csv" are fine; only the literal ".." escapes.
func ValidateFilename(filename string) error {
	switch {
	case filename == "":
		return fmt.Errorf("filename cannot be empty")
	case strings.ContainsRune(filename, 0):
		return fmt.Errorf("filename contains null byte: %q", filename)
	case strings.ContainsAny(filename, `/\`):
		return fmt.Errorf("filename cannot contain path separators: %s", filename)
	case filename == "..":
		return fmt.Errorf("filename cannot be '..'")
	}
	return nil
}

// ValidatePathInDirectory returns an error when path, resolved against
// baseDir if relative, lands outside baseDir.
//
//	ValidatePathInDirectory("../../etc/passwd", "/tmp/downloads") // error
//	ValidatePathInDirectory("sub/file.txt", "/tmp/downloads")     // ok
func ValidatePathInDirectory(path, baseDir string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if baseDir == "" {
		return fmt.Errorf("base directory cannot be empty")
	}

	base, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}
	resolved := filepath.Clean(path)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(base, resolved)
	}

	rel, err := filepath.Rel(base, resolved)
	if err != nil {
		return fmt.Errorf("failed to compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s (base: %s)", path, baseDir)
	}
	return nil
}
