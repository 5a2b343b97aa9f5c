// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "labgate-audit",
		Subcommands: []*Command{
			{
				Name: "query",
				Run: func(args []string) error {
					called = "query"
					return nil
				},
			},
			{
				Name: "compact",
				Run: func(args []string) error {
					called = "compact"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"compact"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "compact" {
		t.Errorf("dispatched to %q, want %q", called, "compact")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "labgate-audit",
		Subcommands: []*Command{
			{
				Name: "spool",
				Subcommands: []*Command{
					{
						Name: "stats",
						Run: func(args []string) error {
							called = "spool stats"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"spool", "stats", "extra-arg"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "spool stats" {
		t.Errorf("dispatched to %q, want %q", called, "spool stats")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "extra-arg" {
		t.Errorf("args = %v, want [extra-arg]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var spoolPath string
	var target string

	command := &Command{
		Name: "ingest",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("ingest", pflag.ContinueOnError)
			flagSet.StringVar(&spoolPath, "spool", "/default.spool", "spool path")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--spool", "/custom.spool", "audit.db"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if spoolPath != "/custom.spool" {
		t.Errorf("spoolPath = %q, want %q", spoolPath, "/custom.spool")
	}
	if target != "audit.db" {
		t.Errorf("target = %q, want %q", target, "audit.db")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "query",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("query", pflag.ContinueOnError)
			flagSet.String("username", "", "filter by username")
			flagSet.String("outcome", "", "filter by outcome")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--usrename", "student42"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --username") {
		t.Errorf("error = %q, want suggestion for '--username'", errStr)
	}
	// Suggestion should be on the same line as the error, not buried.
	if !strings.Contains(errStr, "usrename") {
		t.Errorf("error = %q, should mention the bad flag", errStr)
	}
	// Should include a pointer to --help.
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "query",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("query", pflag.ContinueOnError)
			flagSet.String("outcome", "", "filter by outcome")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "labgate-audit",
		Subcommands: []*Command{
			{Name: "query"},
			{Name: "compact"},
			{Name: "stats"},
		},
	}

	err := root.Execute([]string{"comapct"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "did you mean \"compact\"") {
		t.Errorf("error = %q, want suggestion for 'compact'", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "labgate-audit",
		Subcommands: []*Command{
			{Name: "query"},
			{Name: "compact"},
		},
	}

	err := root.Execute([]string{"zzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:    "labgate-audit",
				Summary: "Inspect and archive session audit records",
				Subcommands: []*Command{
					{Name: "query", Summary: "Query ingested events"},
				},
			}

			err := root.Execute([]string{helpArg})
			if err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestCommand_Execute_HelpFlagAfterOtherFlags(t *testing.T) {
	command := &Command{
		Name: "query",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("query", pflag.ContinueOnError)
			flagSet.String("outcome", "", "filter by outcome")
			return flagSet
		},
		Run: func(args []string) error {
			t.Error("Run called for a help request")
			return nil
		},
	}

	if err := command.Execute([]string{"--outcome", "denied", "--help"}); err != nil {
		t.Errorf("Execute() error: %v", err)
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name: "labgate-audit",
		Subcommands: []*Command{
			{Name: "query", Summary: "Query ingested events"},
		},
	}

	err := root.Execute([]string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "labgate-audit",
		Description: "Inspect, archive, and query session audit records.",
		Subcommands: []*Command{
			{Name: "tail", Summary: "Print spool events as they are appended"},
			{Name: "ingest", Summary: "Load spool events into the audit database"},
			{Name: "query", Summary: "Query ingested events"},
		},
		Examples: []Example{
			{
				Description: "Show denied connections for one user",
				Command:     "labgate-audit query --username student42 --outcome denied",
			},
			{
				Description: "Archive the spool and reset it",
				Command:     "labgate-audit compact --db /var/lib/labgate/audit.db",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	// Verify structural elements are present.
	for _, want := range []string{
		"Inspect, archive, and query session audit records.",
		"Usage:",
		"labgate-audit <command> [flags]",
		"Commands:",
		"tail",
		"Print spool events as they are appended",
		"ingest",
		"Load spool events into the audit database",
		"Examples:",
		"labgate-audit query --username student42",
		"labgate-audit compact",
		"Run 'labgate-audit <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "query",
		Summary: "Query ingested events",
		Usage:   "labgate-audit query [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("query", pflag.ContinueOnError)
			flagSet.String("db", "/var/lib/labgate/audit.db", "audit database path")
			flagSet.String("outcome", "", "filter by outcome")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"labgate-audit query [flags]",
		"Flags:",
		"db",
		"outcome",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_Execute_ErrorsCarryFullCommandPath(t *testing.T) {
	root := &Command{
		Name: "labgate-audit",
		Subcommands: []*Command{
			{
				Name: "spool",
				Subcommands: []*Command{
					{
						Name: "stats",
						Flags: func() *pflag.FlagSet {
							return pflag.NewFlagSet("stats", pflag.ContinueOnError)
						},
						Run: func(args []string) error { return nil },
					},
				},
			},
		},
	}

	err := root.Execute([]string{"spool", "stats", "--bogus"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if !strings.Contains(err.Error(), "labgate-audit spool stats --help") {
		t.Errorf("error = %q, want full command path in the help hint", err.Error())
	}
}

func TestCommand_Execute_HelpKeywordDescends(t *testing.T) {
	ran := false
	root := &Command{
		Name: "labgate-audit",
		Subcommands: []*Command{
			{
				Name:    "query",
				Summary: "Query ingested events",
				Run: func(args []string) error {
					ran = true
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"help", "query"}); err != nil {
		t.Fatalf("Execute(help query) error: %v", err)
	}
	if ran {
		t.Error("help request ran the command")
	}

	err := root.Execute([]string{"help", "qeury"})
	if err == nil {
		t.Fatal("Execute(help qeury) = nil, want unknown command error")
	}
	if !strings.Contains(err.Error(), "did you mean \"query\"") {
		t.Errorf("error = %q, want suggestion for 'query'", err.Error())
	}
}
