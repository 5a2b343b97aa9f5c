// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/ssh"

	"github.com/exerlab/labgate/lib/cli"
	"github.com/exerlab/labgate/lib/config"
	"github.com/exerlab/labgate/lib/control"
	"github.com/exerlab/labgate/lib/process"
	"github.com/exerlab/labgate/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string

	flagSet := pflag.NewFlagSet("labgate-authkeys", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to labgate.yaml (default: $LABGATE_CONFIG)")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("labgate-authkeys")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) != 1 {
		printHelp(flagSet)
		return fmt.Errorf("expected exactly one username argument, got %d", len(args))
	}
	username := args[0]

	// From here on every failure denies the login: log it, print no
	// keys, exit 0. A non-zero exit would also deny, but sshd logs it
	// as a command failure rather than an empty key list.
	cfg, err := loadConfig(configPath)
	if err != nil {
		cli.NewCommandLogger(slog.LevelInfo).Error("config load failed, denying key lookup",
			"error", err)
		return nil
	}
	logger := cli.NewCommandLogger(cfg.LogLevel()).With(
		"command", "authkeys",
		"username", username,
	)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ControlTimeout())
	defer cancel()

	client := control.New(cfg.ControlPlane.BaseURL, cfg.ControlTimeout())
	keys, err := client.AuthorizedKeys(ctx, username)
	if err != nil {
		logger.Error("authorized key lookup failed, denying login", "error", err)
		return nil
	}

	valid := validKeys(keys, logger)
	for _, key := range valid {
		fmt.Fprintln(os.Stdout, key)
	}
	logger.Info("authorized keys served", "total", len(keys), "printed", len(valid))
	return nil
}

// validKeys filters the control plane's key list down to lines sshd will
// accept, dropping anything that does not parse in authorized_keys
// format. A malformed key in the middle of the list must not poison the
// rest of the user's keys.
func validKeys(keys []string, logger *slog.Logger) []string {
	var valid []string
	for _, key := range keys {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key)); err != nil {
			logger.Warn("skipping malformed authorized key", "error", err)
			continue
		}
		valid = append(valid, key)
	}
	return valid
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Print a user's authorized SSH keys from the control plane.

Intended as the sshd AuthorizedKeysCommand. Prints keys in
authorized_keys format to stdout, one per line. Any failure denies the
login: nothing is printed and the exit code stays 0.

Usage:
  labgate-authkeys [flags] <username>

Examples:
  # Look up a user's keys against the configured control plane
  labgate-authkeys student42

  # Use an explicit config instead of $LABGATE_CONFIG
  labgate-authkeys --config /etc/labgate/labgate.yaml student42

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
