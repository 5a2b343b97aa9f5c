// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Options holds the parameters for opening a SQLite connection pool.
// Path is required; everything else has defaults suited to a short-lived
// command-line tool.
type Options struct {
	// Path is the filesystem path to the database file. The parent
	// directory must exist; the file is created on first open. Use
	// ":memory:" with PoolSize 1 for throwaway databases in tests
	// (each in-memory connection is its own database).
	Path string

	// PoolSize is the number of connections. If zero or negative it
	// defaults to 2: the audit commands are single-goroutine, and two
	// connections are enough to let a query overlap an in-flight
	// compact. SQLite serializes writes regardless, so larger pools
	// only help concurrent readers.
	PoolSize int

	// Logger receives open/close messages. Nil means silent.
	Logger *slog.Logger

	// Prepare runs once per connection after the standard pragmas,
	// before the connection is handed out. Schema creation goes here.
	// An error discards the connection and surfaces from Take.
	Prepare func(conn *sqlite.Conn) error
}

// Pool is a fixed-size pool of SQLite connections opened with the
// pragmas every labgate database uses. It wraps sqlitex.Pool and keeps
// its Take/Put shape.
//
// The pool is safe for concurrent use; individual connections are not.
// A goroutine owns a connection from Take until Put.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// standardPragmas are applied to every connection. WAL keeps readers
// and the single writer out of each other's way; NORMAL synchronous
// survives process crashes, which is all the audit store needs — the
// spool file remains the source of truth until compact removes it.
var standardPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA cache_size=-2048",
}

// Open creates the pool and applies the standard pragmas to each
// connection. Connections are initialized lazily on first Take. The
// caller owns the pool and must Close it.
func Open(opts Options) (*Pool, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	size := opts.PoolSize
	if size <= 0 {
		size = 2
	}

	inner, err := sqlitex.NewPool(opts.Path, sqlitex.PoolOptions{
		PoolSize: size,
		PrepareConn: func(conn *sqlite.Conn) error {
			for _, pragma := range standardPragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
				}
			}
			if opts.Prepare == nil {
				return nil
			}
			if err := opts.Prepare(conn); err != nil {
				return fmt.Errorf("sqlitepool: preparing connection: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", opts.Path, err)
	}

	logger.Debug("sqlite pool opened", "path", opts.Path, "pool_size", size)

	return &Pool{inner: inner, logger: logger, path: opts.Path}, nil
}

// Take borrows a connection, blocking until one is free or ctx is
// cancelled. Pair every Take with a Put:
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Nil is a no-op.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Close closes every connection, blocking until borrowed ones come
// back. Take fails after Close.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close error", "path", p.path, "error", err)
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Debug("sqlite pool closed", "path", p.path)
	return nil
}
