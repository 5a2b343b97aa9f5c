// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"

	"github.com/spf13/pflag"
)

// suggestCommand returns the subcommand name closest to the unknown
// input, or "" when nothing is within reach.
func suggestCommand(input string, commands []*Command) string {
	names := make([]string, len(commands))
	for i, command := range commands {
		names[i] = command.Name
	}
	return closest(input, names)
}

// suggestFlag finds the flag that made the parse fail and returns the
// closest defined flag, prefixed for display ("--username"), or "".
func suggestFlag(args []string, flagSet *pflag.FlagSet) string {
	input := firstUnknownFlag(args, flagSet)
	if input == "" {
		return ""
	}

	var defined []string
	flagSet.VisitAll(func(flag *pflag.Flag) {
		defined = append(defined, flag.Name)
	})

	match := closest(input, defined)
	switch {
	case match == "":
		return ""
	case len(match) == 1:
		return "-" + match
	default:
		return "--" + match
	}
}

// firstUnknownFlag returns the bare name of the first dash-prefixed
// argument that is not a defined flag.
func firstUnknownFlag(args []string, flagSet *pflag.FlagSet) string {
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name := strings.TrimLeft(arg, "-")
		if index := strings.IndexByte(name, '='); index >= 0 {
			name = name[:index]
		}
		if name == "" || flagSet.Lookup(name) != nil {
			continue
		}
		return name
	}
	return ""
}

// closest returns the candidate nearest to input by edit distance.
// Reach scales with input length — one edit per three characters,
// capped at three — so a short input never matches an unrelated name.
func closest(input string, candidates []string) string {
	limit := (len(input) + 2) / 3
	if limit > 3 {
		limit = 3
	}

	best := ""
	bestDistance := limit + 1
	for _, candidate := range candidates {
		if distance := editDistance(input, candidate); distance < bestDistance {
			bestDistance = distance
			best = candidate
		}
	}
	return best
}

// editDistance is the Levenshtein distance between a and b: how many
// single-character insertions, deletions, and substitutions turn one
// into the other.
func editDistance(a, b string) int {
	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for j := range previous {
		previous[j] = j
	}

	for i := 1; i <= len(a); i++ {
		current[0] = i
		for j := 1; j <= len(b); j++ {
			replace := previous[j-1]
			if a[i-1] != b[j-1] {
				replace++
			}
			current[j] = min(replace, previous[j]+1, current[j-1]+1)
		}
		previous, current = current, previous
	}
	return previous[len(b)]
}
