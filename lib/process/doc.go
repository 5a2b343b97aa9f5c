// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for labgate
// binaries. These functions centralize the raw stderr I/O that exists
// before the structured logger is initialized: fatal error reporting in
// main() for errors from run().
package process
