// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/exerlab/labgate/lib/sqlitepool"
)

// newPool opens a pool on a temporary database and closes it when the
// test finishes.
func newPool(t *testing.T, opts sqlitepool.Options) *sqlitepool.Pool {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "pool.db")
	}
	pool, err := sqlitepool.Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}

func pragmaInt(t *testing.T, conn *sqlite.Conn, pragma string) int64 {
	t.Helper()
	var value int64
	err := sqlitex.ExecuteTransient(conn, "PRAGMA "+pragma, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("PRAGMA %s: %v", pragma, err)
	}
	return value
}

func TestStandardPragmas(t *testing.T) {
	pool := newPool(t, sqlitepool.Options{})

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	var journalMode string
	err = sqlitex.ExecuteTransient(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			journalMode = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}

	if got := pragmaInt(t, conn, "synchronous"); got != 1 {
		t.Errorf("synchronous = %d, want 1 (NORMAL)", got)
	}
	if got := pragmaInt(t, conn, "busy_timeout"); got != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", got)
	}
}

func TestPrepareCreatesSchema(t *testing.T) {
	pool := newPool(t, sqlitepool.Options{
		Prepare: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn,
				"CREATE TABLE IF NOT EXISTS notes (body TEXT NOT NULL);", nil)
		},
	})

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	err = sqlitex.Execute(conn, "INSERT INTO notes (body) VALUES (?)",
		&sqlitex.ExecOptions{Args: []any{"hello"}})
	if err != nil {
		t.Fatalf("insert into Prepare-created table: %v", err)
	}
}

func TestPrepareFailureSurfacesFromTake(t *testing.T) {
	prepareErr := errors.New("schema exploded")
	pool, err := sqlitepool.Open(sqlitepool.Options{
		Path:    filepath.Join(t.TempDir(), "bad.db"),
		Prepare: func(*sqlite.Conn) error { return prepareErr },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Take(context.Background()); err == nil {
		t.Fatal("Take succeeded despite failing Prepare")
	}
}

func TestDefaultPoolAllowsReaderBesideWriter(t *testing.T) {
	pool := newPool(t, sqlitepool.Options{
		Prepare: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn,
				"CREATE TABLE IF NOT EXISTS numbers (value INTEGER NOT NULL);", nil)
		},
	})

	// The default pool size is 2, so a second Take must not block
	// while the first connection is held.
	writer, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take writer: %v", err)
	}
	defer pool.Put(writer)

	err = sqlitex.Execute(writer, "INSERT INTO numbers (value) VALUES (?)",
		&sqlitex.ExecOptions{Args: []any{7}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	reader, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take reader: %v", err)
	}
	defer pool.Put(reader)

	var sum int64
	err = sqlitex.Execute(reader, "SELECT SUM(value) FROM numbers", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			sum = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if sum != 7 {
		t.Errorf("sum = %d, want 7", sum)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	if _, err := sqlitepool.Open(sqlitepool.Options{}); err == nil {
		t.Fatal("expected error for empty Path")
	}
}

func TestTakeWithCancelledContext(t *testing.T) {
	pool, err := sqlitepool.Open(sqlitepool.Options{
		Path:     filepath.Join(t.TempDir(), "cancel.db"),
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	held, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}

	// Pool exhausted; a cancelled context must fail instead of
	// blocking forever.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Take(ctx); err == nil {
		t.Fatal("Take with cancelled context succeeded")
	}

	pool.Put(held)
}
