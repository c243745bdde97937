// Command labscan is a lab-safe reconnaissance dashboard built around a
// fixed nmap profile.
package main

import (
	"github.com/anstrom/labscan/cmd/cli"
	"github.com/anstrom/labscan/internal/api/handlers"
)

// Build information, set via ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	handlers.SetBuildInfo(version, commit, buildTime)
	cli.Execute()
}
