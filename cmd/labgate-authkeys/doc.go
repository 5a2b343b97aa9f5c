// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

// Labgate-authkeys is the AuthorizedKeysCommand helper for sshd. Given a
// username, it asks the control plane for the user's public keys and
// prints them in authorized_keys format, one per line. Every failure
// (config, network, control plane error) denies the login by printing
// nothing and exiting 0.
//
// sshd_config wiring:
//
//	AuthorizedKeysCommand /usr/bin/labgate-authkeys %u
//	AuthorizedKeysCommandUser nobody
package main
