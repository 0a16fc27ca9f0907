// Package version provides build version information for sfs.
// It is separate from cli so other packages can read it without an import cycle.
package version

import (
	"fmt"
	"runtime"
)

// Version is the build version string, set by ldflags during build.
// Format: vX.Y.Z or vX.Y.Z-dev for development builds.
var Version = "v0.4.0-dev"

// BuildTime is the build timestamp, set by ldflags during build.
var BuildTime = "unknown"

// String returns the one-line version banner.
func String() string {
	return fmt.Sprintf("sfs %s (built %s, %s %s/%s)", Version, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
