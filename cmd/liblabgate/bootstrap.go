// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/exerlab/labgate/lib/agent"
	"github.com/exerlab/labgate/lib/config"
	"github.com/exerlab/labgate/lib/version"
)

var (
	gateOnce   sync.Once
	gateAgent  *agent.Agent
	gateLogger *slog.Logger
)

// gate returns the process-wide agent and logger, building both on the
// first entry point call. Construction is deferred until then so that
// merely loading the library into sshd does no work and cannot fail.
func gate() (*agent.Agent, *slog.Logger) {
	gateOnce.Do(func() {
		cfg, loadErr := libraryConfig()
		gateLogger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.LogLevel(),
		}))
		slog.SetDefault(gateLogger)
		if loadErr != nil {
			gateLogger.Error("config load failed, using built-in defaults",
				"error", loadErr)
		}
		gateAgent = agent.New(agent.Options{Config: cfg, Logger: gateLogger})
		gateLogger.Info("labgate library initialized",
			"version", version.Info(),
			"control_plane", cfg.ControlPlane.BaseURL,
			"broker", cfg.Broker.Address)
	})
	return gateAgent, gateLogger
}

// libraryConfig loads configuration the way a library living inside
// sshd must: an unset LABGATE_CONFIG means the built-in defaults, and a
// file that fails to load or validate also means the defaults, with the
// error returned for logging. It never fails outright — a bad config
// file must degrade the agent, not sshd.
func libraryConfig() (*config.Config, error) {
	path := os.Getenv("LABGATE_CONFIG")
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return config.Default(), fmt.Errorf("loading %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Default(), fmt.Errorf("validating %s: %w", path, err)
	}
	return cfg, nil
}
