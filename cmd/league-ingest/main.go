// league-ingest - match history ingestion service for tracked accounts
package main

import (
	"os"

	"github.com/JairoE/league-match-analyzer/internal/cli"
)

// Version information - overridden at release time via LDFLAGS.
var (
	Version   = "v1.0.0"
	BuildTime = "2026-09-01"
)

func main() {
	cli.Version = Version
	cli.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
