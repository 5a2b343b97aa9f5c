// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/exerlab/labgate/lib/audit"
	"github.com/exerlab/labgate/lib/cli"
)

func ingestCommand() *cli.Command {
	var configPath string
	var spoolPath string
	var storePath string

	return &cli.Command{
		Name:    "ingest",
		Summary: "Append spool events into the SQLite store",
		Description: `Read the audit spool and insert every event into the SQLite store.

The spool is left in place, so running ingest twice over the same spool
stores the records twice. Use compact for the ingest-archive-reset
cycle that keeps each record stored exactly once.`,
		Usage: "labgate-audit ingest [flags]",
		Examples: []cli.Example{
			{
				Description: "Load the configured spool into the default store",
				Command:     "labgate-audit ingest",
			},
			{
				Description: "Load a copied spool into a scratch database",
				Command:     "labgate-audit ingest --spool ./audit.spool --db ./audit.db",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("ingest", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "path to labgate.yaml (default: $LABGATE_CONFIG)")
			flagSet.StringVar(&spoolPath, "spool", "", "spool file (default: from config)")
			flagSet.StringVar(&storePath, "db", defaultStorePath, "SQLite event store")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("ingest takes no arguments, got %d", len(args))
			}
			return runIngest(configPath, spoolPath, storePath)
		},
	}
}

func runIngest(configPath, spoolFlag, storePath string) error {
	logger := cli.NewCommandLogger(slog.LevelInfo).With("command", "audit/ingest")

	spool, err := resolveSpool(configPath, spoolFlag)
	if err != nil {
		return err
	}

	events, readErr := audit.ReadFile(spool)
	if readErr != nil {
		logger.Warn("spool has a truncated final record, ingesting the intact events",
			"spool", spool,
			"intact_events", len(events),
			"error", readErr)
	}
	if len(events) == 0 {
		logger.Info("spool is empty, nothing to ingest", "spool", spool)
		return nil
	}

	store, err := OpenStore(storePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.IngestEvents(context.Background(), events); err != nil {
		return err
	}
	logger.Info("events ingested",
		"count", len(events),
		"spool", spool,
		"db", storePath)
	return nil
}
