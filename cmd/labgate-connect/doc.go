// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

// Labgate-connect is a diagnostic client for the connection broker. It
// performs the broker handshake for a given instance and destination,
// then relays the proxied connection to stdin/stdout like netcat. With
// --probe it stops after the handshake and reports whether the broker
// accepted, which makes it usable as a health check.
package main
