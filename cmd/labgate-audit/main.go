// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/exerlab/labgate/lib/cli"
	"github.com/exerlab/labgate/lib/config"
	"github.com/exerlab/labgate/lib/process"
	"github.com/exerlab/labgate/lib/version"
)

// defaultStorePath is where the SQLite event store lives. The spool
// path is the agent's concern and comes from its config; the store
// belongs to this tool and sits under /var/lib.
const defaultStorePath = "/var/lib/labgate/audit.db"

// defaultArchiveDir is where compact writes spool archives.
const defaultArchiveDir = "/var/lib/labgate/archive"

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("labgate-audit")
		return nil
	}
	return rootCommand().Execute(os.Args[1:])
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:    "labgate-audit",
		Summary: "Inspect and manage the gateway agent's audit records",
		Description: `Inspect and manage the gateway agent's audit records.

Agents append authentication and connection events to a spool file;
this tool prints the spool, loads it into a queryable SQLite store,
and archives compacted spools.`,
		Subcommands: []*cli.Command{
			tailCommand(),
			ingestCommand(),
			queryCommand(),
			compactCommand(),
			statsCommand(),
		},
	}
}

// resolveConfig loads configuration for the audit tooling: an explicit
// --config path, then $LABGATE_CONFIG, then built-in defaults. The tool
// runs on the entry host where the defaults match the deployment, so a
// missing config file is not an error.
func resolveConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("LABGATE_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// resolveSpool returns the spool path to operate on: the --spool
// override, or the configured one.
func resolveSpool(configPath, spoolFlag string) (string, error) {
	if spoolFlag != "" {
		return spoolFlag, nil
	}
	cfg, err := resolveConfig(configPath)
	if err != nil {
		return "", err
	}
	if cfg.Audit.SpoolPath == "" {
		return "", fmt.Errorf("auditing is disabled in the configuration (empty audit.spool_path); pass --spool explicitly")
	}
	return cfg.Audit.SpoolPath, nil
}
