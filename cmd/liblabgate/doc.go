// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

// Liblabgate is the shared library the platform's patched sshd loads on
// the entry host. It exposes two C functions:
//
//	void authenticate(const char *username, const char *pubkey);
//	int  proxy_connect(const char *dst_ip, const char *dst_port);
//
// sshd calls authenticate once, right after a public key authenticates,
// to resolve and cache the session's grant from the control plane. It
// calls proxy_connect whenever the session asks for TCP forwarding; on
// success the return value is a connected socket descriptor that sshd
// owns outright, on any failure it is -1. Rich error detail never
// crosses the ABI — it goes to the JSON log on stderr (which sshd
// captures) and to the audit spool.
//
// Build:
//
//	go build -buildmode=c-shared -o liblabgate.so ./cmd/liblabgate
//
// The build also writes liblabgate.h with the declarations above.
//
// Configuration comes from the file named by $LABGATE_CONFIG. The
// library must never take sshd down over operational problems, so a
// missing or invalid config falls back to built-in defaults with an
// error in the log.
package main
