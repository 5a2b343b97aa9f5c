// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/exerlab/labgate/lib/cli"
)

// statsArchiveListLimit bounds the archive listing; older archives stay
// visible through the store, not the summary.
const statsArchiveListLimit = 5

func statsCommand() *cli.Command {
	var storePath string

	return &cli.Command{
		Name:    "stats",
		Summary: "Summarize the store: partitions, counts, archives",
		Usage:   "labgate-audit stats [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("stats", pflag.ContinueOnError)
			flagSet.StringVar(&storePath, "db", defaultStorePath, "SQLite event store")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("stats takes no arguments, got %d", len(args))
			}
			return runStats(storePath)
		},
	}
}

func runStats(storePath string) error {
	logger := cli.NewCommandLogger(slog.LevelWarn).With("command", "audit/stats")

	store, err := OpenStore(storePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	archives, err := store.Archives(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Events:     %d\n", stats.EventCount)
	if stats.PartitionCount > 0 {
		fmt.Printf("Partitions: %d (%s .. %s)\n",
			stats.PartitionCount, stats.OldestPartition, stats.NewestPartition)
	} else {
		fmt.Printf("Partitions: 0\n")
	}
	fmt.Printf("Archives:   %d\n", stats.ArchiveCount)
	fmt.Printf("Database:   %d bytes\n", stats.DatabaseSizeBytes)

	if len(archives) == 0 {
		return nil
	}
	fmt.Printf("\nNewest archives:\n")
	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tEVENTS\tRAW\tCOMPRESSED\tPATH")
	for i, archive := range archives {
		if i == statsArchiveListLimit {
			break
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n",
			time.UnixMilli(archive.Created).UTC().Format(time.RFC3339),
			archive.Events,
			archive.RawBytes,
			archive.CompressedBytes,
			archive.Path)
	}
	tw.Flush()
	return nil
}
