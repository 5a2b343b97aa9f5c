// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/exerlab/labgate/lib/audit"
	"github.com/exerlab/labgate/lib/cli"
)

func tailCommand() *cli.Command {
	var configPath string
	var spoolPath string
	var last int

	return &cli.Command{
		Name:    "tail",
		Summary: "Print spool events as JSON lines",
		Description: `Decode the audit spool and print each event as a JSON line.

Reads the spool in place without modifying it. A truncated final record
(left by a session process killed mid-append) is reported on stderr
after the intact events have printed.`,
		Usage: "labgate-audit tail [flags]",
		Examples: []cli.Example{
			{
				Description: "Print the whole spool",
				Command:     "labgate-audit tail",
			},
			{
				Description: "Print the twenty most recent events of a copied spool",
				Command:     "labgate-audit tail --spool ./audit.spool --last 20",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("tail", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "path to labgate.yaml (default: $LABGATE_CONFIG)")
			flagSet.StringVar(&spoolPath, "spool", "", "spool file (default: from config)")
			flagSet.IntVar(&last, "last", 0, "print only the last N events (0 = all)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("tail takes no arguments, got %d", len(args))
			}
			return runTail(configPath, spoolPath, last)
		},
	}
}

func runTail(configPath, spoolFlag string, last int) error {
	spool, err := resolveSpool(configPath, spoolFlag)
	if err != nil {
		return err
	}

	events, readErr := audit.ReadFile(spool)
	if last > 0 && len(events) > last {
		events = events[len(events)-last:]
	}

	encoder := json.NewEncoder(os.Stdout)
	for i := range events {
		if err := encoder.Encode(&events[i]); err != nil {
			return fmt.Errorf("printing event: %w", err)
		}
	}

	if readErr != nil {
		cli.NewCommandLogger(slog.LevelInfo).Warn("spool has a truncated final record",
			"spool", spool,
			"intact_events", len(events),
			"error", readErr)
	}
	return nil
}
