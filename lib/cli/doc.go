// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework shared by the labgate
// binaries.
//
// The central type is [Command]: a named command with an optional
// [pflag.FlagSet] factory and either a Run function or nested
// [Command.Subcommands]. Each binary assembles its tree in main.go and
// hands os.Args[1:] to [Command.Execute], which routes subcommands,
// parses flags, and serves help for "-h", "--help", and the "help"
// keyword ("labgate-audit help query" included).
//
// Mistyped subcommands and flags get a "did you mean" hint: the
// framework compares the input against every known name by edit
// distance, with a reach that scales with input length so short
// arguments never match unrelated names.
//
// [NewCommandLogger] builds the standard stderr logger for commands:
// human-readable text on a terminal, JSON when piped. [ExitError] lets
// a command exit non-zero without an extra error message.
package cli
