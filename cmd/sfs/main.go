// sfs - command-line client for SimpleFS
package main

import (
	"os"

	"github.com/fossMeDaddy/sfs-cli/internal/cli"
	"github.com/fossMeDaddy/sfs-cli/internal/cloud"
	"github.com/fossMeDaddy/sfs-cli/internal/version"
)

// Version information, injected via -ldflags "-X main.Version=..."
var (
	Version   = "v0.4.0-dev"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	// --timing logs the duration and throughput of every storage call
	args := os.Args[:1]
	for _, a := range os.Args[1:] {
		if a == "--timing" {
			os.Setenv(cloud.EnvTiming, "1")
			continue
		}
		args = append(args, a)
	}
	os.Args = args

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
