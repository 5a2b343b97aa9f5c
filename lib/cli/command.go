// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is one node of a binary's command tree: either a group that
// routes to Subcommands or a leaf with a Run function.
type Command struct {
	// Name is what the user types ("query", "compact").
	Name string

	// Summary is the one-liner shown in the parent's command listing.
	Summary string

	// Description is the long help text. Help falls back to Summary
	// when empty.
	Description string

	// Usage overrides the synthesized usage line.
	Usage string

	// Examples are rendered at the end of help output.
	Examples []Example

	// Flags builds the command's flag set. Called fresh for every
	// parse so a failed parse never leaks state into the next one.
	// Nil means the command takes no flags.
	Flags func() *pflag.FlagSet

	// Subcommands are dispatched by the first positional argument.
	Subcommands []*Command

	// Run executes a leaf command with the positional arguments left
	// after flag parsing.
	Run func(args []string) error
}

// Example is one worked invocation in help output.
type Example struct {
	// Description explains what the example does.
	Description string
	// Command is the literal command line.
	Command string
}

// Execute runs the command tree against args: answers help requests,
// routes positional arguments through Subcommands, parses flags, and
// calls the selected command's Run.
func (c *Command) Execute(args []string) error {
	return c.dispatch(c.Name, args)
}

// dispatch carries the full command path ("labgate-audit query") down
// the tree so help output and error hints always name the real
// invocation.
func (c *Command) dispatch(path string, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "help":
			return c.helpFor(path, args[1:])
		case "-h", "--help":
			c.printHelp(os.Stderr, path)
			return nil
		}
	}

	if len(c.Subcommands) > 0 {
		if len(args) == 0 {
			c.printHelp(os.Stderr, path)
			return fmt.Errorf("subcommand required")
		}
		if strings.HasPrefix(args[0], "-") {
			c.printHelp(os.Stderr, path)
			return fmt.Errorf("subcommand required (got flag %q)", args[0])
		}
		sub := c.subcommand(args[0])
		if sub == nil {
			return c.unknownSubcommand(path, args[0])
		}
		return sub.dispatch(path+" "+sub.Name, args[1:])
	}

	rest, served, err := c.parseFlags(path, args)
	if err != nil {
		return err
	}
	if served {
		return nil
	}
	if c.Run == nil {
		c.printHelp(os.Stderr, path)
		return fmt.Errorf("no action defined for %q", path)
	}
	return c.Run(rest)
}

// helpFor answers the "help" keyword: bare help prints this command's
// help, "help query" descends into the query subcommand first.
func (c *Command) helpFor(path string, args []string) error {
	if len(args) == 0 {
		c.printHelp(os.Stderr, path)
		return nil
	}
	sub := c.subcommand(args[0])
	if sub == nil {
		return c.unknownSubcommand(path, args[0])
	}
	return sub.helpFor(path+" "+sub.Name, args[1:])
}

func (c *Command) subcommand(name string) *Command {
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			return sub
		}
	}
	return nil
}

func (c *Command) unknownSubcommand(path, name string) error {
	if match := suggestCommand(name, c.Subcommands); match != "" {
		return fmt.Errorf("unknown command %q (did you mean %q?)\n\nRun '%s --help' for usage.",
			name, match, path)
	}
	return fmt.Errorf("unknown command %q\n\nRun '%s --help' for usage.", name, path)
}

// parseFlags parses args against the command's flag set and returns
// the remaining positional arguments. served is true when the parse
// turned out to be a help request, already answered.
func (c *Command) parseFlags(path string, args []string) (rest []string, served bool, err error) {
	if c.Flags == nil {
		return args, false, nil
	}

	flagSet := c.Flags()
	// pflag's own error output duplicates what we format below, minus
	// the suggestion.
	flagSet.SetOutput(io.Discard)

	parseErr := flagSet.Parse(args)
	if parseErr == nil {
		return flagSet.Args(), false, nil
	}
	if errors.Is(parseErr, pflag.ErrHelp) {
		c.printHelp(os.Stderr, path)
		return nil, true, nil
	}

	message := parseErr.Error()
	if strings.Contains(message, "unknown flag") || strings.Contains(message, "unknown shorthand") {
		// A fresh flag set: the failed parse consumed state.
		if suggestion := suggestFlag(args, c.Flags()); suggestion != "" {
			return nil, false, fmt.Errorf("%s (did you mean %s?)\n\nRun '%s --help' for usage.",
				message, suggestion, path)
		}
	}
	return nil, false, fmt.Errorf("%s\n\nRun '%s --help' for usage.", message, path)
}

// PrintHelp writes the command's help text to w.
func (c *Command) PrintHelp(w io.Writer) {
	c.printHelp(w, c.Name)
}

func (c *Command) printHelp(w io.Writer, path string) {
	if about := c.about(); about != "" {
		fmt.Fprintf(w, "%s\n\n", about)
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", c.usageLine(path))

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(tw, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		tw.Flush()
	}

	if c.Flags != nil {
		flagSet := c.Flags()
		var defaults strings.Builder
		flagSet.SetOutput(&defaults)
		flagSet.PrintDefaults()
		if defaults.Len() > 0 {
			fmt.Fprintf(w, "\nFlags:\n%s", defaults.String())
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nExamples:\n")
		for i, example := range c.Examples {
			if i > 0 {
				fmt.Fprintln(w)
			}
			if example.Description != "" {
				fmt.Fprintf(w, "  # %s\n", example.Description)
			}
			fmt.Fprintf(w, "  %s\n", example.Command)
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", path)
	}
}

func (c *Command) about() string {
	if c.Description != "" {
		return c.Description
	}
	return c.Summary
}

func (c *Command) usageLine(path string) string {
	switch {
	case c.Usage != "":
		return c.Usage
	case len(c.Subcommands) > 0:
		return path + " <command> [flags]"
	default:
		return path + " [flags]"
	}
}
