// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/exerlab/labgate/lib/audit"
	"github.com/exerlab/labgate/lib/cli"
)

func queryCommand() *cli.Command {
	var storePath string
	var kind string
	var username string
	var outcome string
	var instanceID uint64
	var since string
	var until string
	var limit int
	var jsonOutput bool

	return &cli.Command{
		Name:    "query",
		Summary: "Search the store by kind, user, outcome, instance, time",
		Description: `Search ingested events, newest first.

Time bounds take either an RFC 3339 timestamp or a Go duration counted
back from now ("48h" means the last two days). All filters combine with
AND; unset filters match everything.`,
		Usage: "labgate-audit query [flags]",
		Examples: []cli.Example{
			{
				Description: "Denied connection attempts in the last day",
				Command:     "labgate-audit query --kind connect --outcome denied --since 24h",
			},
			{
				Description: "One student's authentication history, as JSON",
				Command:     "labgate-audit query --kind auth --username student42 --json",
			},
			{
				Description: "Everything an instance did in a window",
				Command:     "labgate-audit query --instance-id 4242 --since 2026-08-20T00:00:00Z --until 2026-08-21T00:00:00Z",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("query", pflag.ContinueOnError)
			flagSet.StringVar(&storePath, "db", defaultStorePath, "SQLite event store")
			flagSet.StringVar(&kind, "kind", "", "event kind: auth or connect")
			flagSet.StringVar(&username, "username", "", "SSH login name (auth events)")
			flagSet.StringVar(&outcome, "outcome", "", "outcome: ok, denied, or error")
			flagSet.Uint64Var(&instanceID, "instance-id", 0, "instance the event belongs to")
			flagSet.StringVar(&since, "since", "", "earliest event time (RFC 3339 or duration back from now)")
			flagSet.StringVar(&until, "until", "", "latest event time (RFC 3339 or duration back from now)")
			flagSet.IntVar(&limit, "limit", 100, "maximum events to return")
			flagSet.BoolVar(&jsonOutput, "json", false, "print events as JSON lines instead of a table")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("query takes no arguments, got %d", len(args))
			}

			now := time.Now()
			sinceMillis, err := parseTimeFlag(since, now)
			if err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			untilMillis, err := parseTimeFlag(until, now)
			if err != nil {
				return fmt.Errorf("--until: %w", err)
			}

			filter := EventFilter{
				Kind:       kind,
				Username:   username,
				Outcome:    outcome,
				InstanceID: instanceID,
				Since:      sinceMillis,
				Until:      untilMillis,
				Limit:      limit,
			}
			return runQuery(storePath, filter, jsonOutput)
		},
	}
}

func runQuery(storePath string, filter EventFilter, jsonOutput bool) error {
	logger := cli.NewCommandLogger(slog.LevelWarn).With("command", "audit/query")

	store, err := OpenStore(storePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.QueryEvents(context.Background(), filter)
	if err != nil {
		return err
	}

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		for i := range events {
			if err := encoder.Encode(&events[i]); err != nil {
				return fmt.Errorf("printing event: %w", err)
			}
		}
		return nil
	}

	printEventTable(os.Stdout, events)
	return nil
}

// parseTimeFlag turns a --since/--until value into Unix milliseconds.
// Empty means "unbounded" (0). A Go duration is counted back from now;
// anything else must parse as RFC 3339.
func parseTimeFlag(value string, now time.Time) (int64, error) {
	if value == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		return now.Add(-d).UnixMilli(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a duration nor an RFC 3339 timestamp", value)
	}
	return t.UnixMilli(), nil
}

func printEventTable(w *os.File, events []audit.Event) {
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tOUTCOME\tWHO\tDESTINATION\tMS\tERROR")
	for i := range events {
		event := &events[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			time.UnixMilli(event.Time).UTC().Format(time.RFC3339),
			event.Kind,
			event.Outcome,
			eventWho(event),
			eventDestination(event),
			event.DurationMS,
			event.Error)
	}
	tw.Flush()
}

// eventWho identifies the actor: the username for auth events, the
// instance for connect events (connect events carry no username; the
// grant does not either).
func eventWho(event *audit.Event) string {
	if event.Username != "" {
		return event.Username
	}
	if event.InstanceID != 0 {
		return fmt.Sprintf("instance %d", event.InstanceID)
	}
	return "-"
}

func eventDestination(event *audit.Event) string {
	if event.DstIP == "" {
		return "-"
	}
	return event.DstIP + ":" + event.DstPort
}
