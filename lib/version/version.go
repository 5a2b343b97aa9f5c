// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package version carries build information stamped in via -ldflags:
//
//	go build -ldflags "\
//	  -X github.com/exerlab/labgate/lib/version.Version=1.2.0 \
//	  -X github.com/exerlab/labgate/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Unstamped builds report "0.0.0-dev (unknown, unknown)".
package version

import (
	"fmt"
	"os"
)

// Set at build time via -ldflags.
var (
	// Version is the release version.
	Version = "0.0.0-dev"

	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty is "true" when the build had uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)

// Info returns the one-line version string used by --version output and
// startup logs.
func Info() string {
	commit := GitCommit
	if GitDirty == "true" {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, BuildTime)
}

// Print writes the standard --version line for a binary to stdout.
func Print(binary string) {
	fmt.Fprintf(os.Stdout, "%s %s\n", binary, Info())
}
