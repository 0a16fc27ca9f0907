// Package diskspace checks free space on the filesystem a download is
// written to, so a large transfer fails before it starts instead of at 99%.
package diskspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fossMeDaddy/sfs-cli/internal/cloud"
)

// DefaultSafetyMargin leaves 5% headroom over the bytes a download needs.
const DefaultSafetyMargin = 1.05

// InsufficientSpaceError indicates that there is not enough disk space available.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space for %s: need %s, have %s available",
		e.Path, cloud.FormatBytes(e.RequiredBytes), cloud.FormatBytes(e.AvailableBytes))
}

// CheckAvailableSpace checks the filesystem holding targetPath (which need
// not exist yet) for requiredBytes times safetyMargin of free space.
//
// When free space cannot be determined (network or virtual filesystems)
// the check passes and the write is left to fail on its own.
func CheckAvailableSpace(targetPath string, requiredBytes int64, safetyMargin float64) error {
	if requiredBytes <= 0 {
		return nil
	}
	available, ok := availableBytes(filepath.Dir(targetPath))
	if !ok {
		return nil
	}

	required := int64(float64(requiredBytes) * safetyMargin)
	if available < required {
		return &InsufficientSpaceError{
			Path:           targetPath,
			RequiredBytes:  required,
			AvailableBytes: available,
		}
	}
	return nil
}

// GetAvailableSpace returns the available space in bytes for the filesystem
// containing the given path. Returns 0 if unable to determine.
func GetAvailableSpace(path string) int64 {
	available, _ := availableBytes(filepath.Dir(path))
	return available
}

// IsInsufficientSpaceError checks if err is or wraps an InsufficientSpaceError.
func IsInsufficientSpaceError(err error) bool {
	var target *InsufficientSpaceError
	return errors.As(err, &target)
}

// diskFullIndicators match messages of errors that lost their errno on the
// way up, e.g. through an SDK.
var diskFullIndicators = []string{
	"no space left on device", // Linux/Unix
	"disk full",               // Generic
	"out of disk space",       // Windows
	"not enough space",        // Generic
	"disk quota exceeded",     // Quota systems
}

// IsDiskFullError reports whether err was caused by the disk filling up
// during a write.
func IsDiskFullError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) || IsInsufficientSpaceError(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, indicator := range diskFullIndicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
