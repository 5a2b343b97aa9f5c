// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the labgate
// components.
//
// Configuration is loaded from a single file specified by either the
// LABGATE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search; the shared library is the one exception
// and falls back to [Default] so that a missing file can never keep
// sshd from accepting sessions.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production defaults are quieter: the
// log level is raised to warn unless the file says otherwise.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with ControlPlane, Broker, Audit, Log
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other labgate packages.
package config
