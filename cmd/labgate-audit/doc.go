// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

// Labgate-audit inspects and manages the gateway agent's audit records.
// Agents append CBOR events to a spool file as sessions authenticate
// and open proxied connections; this tool reads that spool and keeps
// the longer-term queryable history.
//
//	tail     print spool events as JSON lines
//	ingest   append spool events into the SQLite store
//	query    search the store by kind, user, outcome, instance, time
//	compact  ingest, archive the spool (zstd + BLAKE3 digest), reset it
//	stats    summarize the store: partitions, counts, archives
//
// The spool path comes from the agent's configuration ($LABGATE_CONFIG
// or --config); the SQLite store and archive directory are tooling
// concerns with their own flags. Events land in day-partitioned tables
// so old days can eventually be dropped as whole tables.
package main
