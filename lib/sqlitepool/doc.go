// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite connection pools with the pragmas the
// audit store relies on.
//
// It is a thin wrapper over zombiezen.com/go/sqlite. Callers [Pool.Take]
// a connection, do their work in plain SQL, and [Pool.Put] it back;
// there is no query builder and no ORM. Connections are not safe for
// concurrent use — each goroutine holds its own for the duration of its
// work.
//
// # Pragmas
//
// Every connection starts with:
//
//   - journal_mode=WAL: readers never block the writer and vice versa,
//     so a query can run while compact is ingesting.
//   - synchronous=NORMAL: commits survive a process crash but not
//     necessarily an OS crash. Acceptable here: until compact removes
//     the spool file, the spool is the source of truth, and a lost
//     commit is re-ingested on the next run.
//   - busy_timeout=5000: wait up to 5 seconds for the write lock
//     instead of failing with SQLITE_BUSY when two commands race.
//   - cache_size=-2048: 2 MB page cache per connection. Audit rows are
//     small and the partition indexes keep scans short; a big cache
//     buys nothing for a process that exits after one command.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Options{
//	    Path:   "/var/lib/labgate/audit.db",
//	    Logger: logger,
//	    Prepare: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
package sqlitepool
