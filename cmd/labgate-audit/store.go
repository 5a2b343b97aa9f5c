// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/exerlab/labgate/lib/audit"
	"github.com/exerlab/labgate/lib/sqlitepool"
)

// Store manages SQLite storage for audit events. Events live in
// time-partitioned tables (one per UTC day) so that old days can be
// dropped as whole tables. The partition scheme is an internal detail
// invisible to query callers.
//
// Write path: ingest and compact call IngestEvents, which inserts a
// whole spool's worth of events in a single IMMEDIATE transaction,
// creating day tables on first write.
//
// Read path: QueryEvents searches the partitions overlapping the
// requested time range, newest first, and returns a flat result set.
//
// A small non-partitioned archives table records every spool archive
// written by compact: file path, sizes, and the BLAKE3 digest of the
// raw spool bytes.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger

	// partitionMu serializes partition table creation and guards
	// knownPartitions.
	partitionMu     sync.Mutex
	knownPartitions map[string]bool // partition suffix → exists
}

// OpenStore opens (creating if necessary) the audit database at path.
// Existing day partitions are discovered so queries include them
// immediately.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	pool, err := sqlitepool.Open(sqlitepool.Options{
		Path:   path,
		Logger: logger,
		Prepare: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, archivesSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}

	store := &Store{
		pool:            pool,
		logger:          logger,
		knownPartitions: make(map[string]bool),
	}

	if err := store.discoverPartitions(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit store: discovering partitions: %w", err)
	}

	return store, nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (s *Store) Close() error {
	return s.pool.Close()
}

const archivesSchema = `
	CREATE TABLE IF NOT EXISTS archives (
		id               INTEGER PRIMARY KEY,
		created          INTEGER NOT NULL,
		path             TEXT NOT NULL,
		events           INTEGER NOT NULL,
		raw_bytes        INTEGER NOT NULL,
		compressed_bytes INTEGER NOT NULL,
		blake3           TEXT NOT NULL
	);
`

// IngestEvents inserts all events into their day partitions in a
// single IMMEDIATE transaction. Creates partition tables on first write
// to a new day. Events are inserted as-is: running ingest twice over
// the same spool stores the records twice (compact removes the spool
// after a successful ingest precisely to keep this exactly-once).
func (s *Store) IngestEvents(ctx context.Context, events []audit.Event) (err error) {
	if len(events) == 0 {
		return nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("audit store: ingest: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("audit store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	// Ensure all needed partitions exist. Most spools span exactly one
	// day; spools left to grow may span several.
	for _, suffix := range collectPartitions(events) {
		if err := s.ensurePartition(conn, suffix); err != nil {
			return err
		}
	}

	for i := range events {
		if err := insertEvent(conn, &events[i]); err != nil {
			return err
		}
	}

	return nil
}

// partitionSuffix returns the YYYYMMDD suffix for a Unix millisecond
// timestamp.
func partitionSuffix(unixMillis int64) string {
	return time.UnixMilli(unixMillis).UTC().Format("20060102")
}

// collectPartitions returns the unique partition suffixes needed by a
// set of events. Most spools produce exactly one suffix.
func collectPartitions(events []audit.Event) []string {
	seen := make(map[string]struct{}, 2)
	for i := range events {
		seen[partitionSuffix(events[i].Time)] = struct{}{}
	}
	partitions := make([]string, 0, len(seen))
	for suffix := range seen {
		partitions = append(partitions, suffix)
	}
	return partitions
}

// ensurePartition creates the day's event table if it doesn't exist.
func (s *Store) ensurePartition(conn *sqlite.Conn, suffix string) error {
	s.partitionMu.Lock()
	defer s.partitionMu.Unlock()

	if s.knownPartitions[suffix] {
		return nil
	}

	if err := sqlitex.ExecuteScript(conn, partitionSchema(suffix), nil); err != nil {
		return fmt.Errorf("audit store: creating partition %s: %w", suffix, err)
	}

	s.knownPartitions[suffix] = true
	s.logger.Info("partition created", "suffix", suffix)
	return nil
}

// partitionSchema returns the CREATE TABLE and CREATE INDEX statements
// for a day partition.
func partitionSchema(suffix string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS events_%[1]s (
			kind        TEXT NOT NULL,
			time        INTEGER NOT NULL,
			outcome     TEXT NOT NULL,
			username    TEXT,
			fingerprint TEXT,
			instance_id INTEGER,
			dst_ip      TEXT,
			dst_port    TEXT,
			duration_ms INTEGER,
			error       TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_%[1]s_time ON events_%[1]s(time);
		CREATE INDEX IF NOT EXISTS idx_events_%[1]s_username ON events_%[1]s(username, time);
		CREATE INDEX IF NOT EXISTS idx_events_%[1]s_outcome ON events_%[1]s(outcome, time);
		CREATE INDEX IF NOT EXISTS idx_events_%[1]s_instance ON events_%[1]s(instance_id, time);
	`, suffix)
}

// insertEvent inserts a single event into its day partition.
func insertEvent(conn *sqlite.Conn, event *audit.Event) error {
	query := fmt.Sprintf(`INSERT INTO events_%s
		(kind, time, outcome, username, fingerprint, instance_id,
		 dst_ip, dst_port, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, partitionSuffix(event.Time))

	return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{
			event.Kind,
			event.Time,
			event.Outcome,
			nullableText(event.Username),
			nullableText(event.Fingerprint),
			int64(event.InstanceID),
			nullableText(event.DstIP),
			nullableText(event.DstPort),
			event.DurationMS,
			nullableText(event.Error),
		},
	})
}

// nullableText maps an empty string to NULL so that absent optional
// fields do not masquerade as empty values in filters.
func nullableText(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// discoverPartitions finds existing partition tables from a previous
// run. Called once during OpenStore.
func (s *Store) discoverPartitions() error {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"SELECT name FROM sqlite_master WHERE type='table' AND name LIKE 'events_%'",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				tableName := stmt.ColumnText(0)
				suffix := strings.TrimPrefix(tableName, "events_")
				s.knownPartitions[suffix] = true
				return nil
			},
		})
	if err != nil {
		return err
	}

	if len(s.knownPartitions) > 0 {
		s.logger.Info("discovered existing partitions", "count", len(s.knownPartitions))
	}
	return nil
}

// activePartitions returns the known partition suffixes sorted newest
// first.
func (s *Store) activePartitions() []string {
	s.partitionMu.Lock()
	partitions := make([]string, 0, len(s.knownPartitions))
	for suffix := range s.knownPartitions {
		partitions = append(partitions, suffix)
	}
	s.partitionMu.Unlock()

	sort.Sort(sort.Reverse(sort.StringSlice(partitions)))
	return partitions
}

// partitionsInRange returns partition suffixes that overlap with the
// given millisecond time range. If since or until is zero, that bound
// is open.
func (s *Store) partitionsInRange(since, until int64) []string {
	all := s.activePartitions()
	if since == 0 && until == 0 {
		return all
	}

	var filtered []string
	for _, suffix := range all {
		partitionDate, err := time.Parse("20060102", suffix)
		if err != nil {
			continue
		}
		// The partition covers [partitionDate 00:00:00, partitionDate+24h).
		partitionStart := partitionDate.UnixMilli()
		partitionEnd := partitionDate.Add(24 * time.Hour).UnixMilli()

		if since != 0 && partitionEnd <= since {
			continue
		}
		if until != 0 && partitionStart >= until {
			continue
		}
		filtered = append(filtered, suffix)
	}
	return filtered
}

// EventFilter specifies the criteria for querying events. All fields
// are optional; zero-valued fields are not applied as filters.
type EventFilter struct {
	Kind       string // Exact match on event kind ("auth" or "connect").
	Username   string // Exact match on username.
	Outcome    string // Exact match on outcome.
	InstanceID uint64 // Exact match on instance (0 = no filter).
	Since      int64  // Earliest event time (Unix milliseconds).
	Until      int64  // Latest event time (Unix milliseconds).
	Limit      int    // Maximum events to return (default 100).
}

// QueryEvents returns events matching the filter, searching the
// partitions that overlap the filter's time range. Results are sorted
// by time descending (newest first).
func (s *Store) QueryEvents(ctx context.Context, filter EventFilter) ([]audit.Event, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit store: query: %w", err)
	}
	defer s.pool.Put(conn)

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var results []audit.Event
	for _, suffix := range s.partitionsInRange(filter.Since, filter.Until) {
		if len(results) >= limit {
			break
		}
		events, err := s.queryPartition(conn, suffix, filter, limit-len(results))
		if err != nil {
			return nil, err
		}
		results = append(results, events...)
	}
	return results, nil
}

func (s *Store) queryPartition(conn *sqlite.Conn, suffix string, filter EventFilter, limit int) ([]audit.Event, error) {
	var conditions []string
	var args []any

	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Username != "" {
		conditions = append(conditions, "username = ?")
		args = append(args, filter.Username)
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filter.Outcome)
	}
	if filter.InstanceID != 0 {
		conditions = append(conditions, "instance_id = ?")
		args = append(args, int64(filter.InstanceID))
	}
	if filter.Since > 0 {
		conditions = append(conditions, "time >= ?")
		args = append(args, filter.Since)
	}
	if filter.Until > 0 {
		conditions = append(conditions, "time <= ?")
		args = append(args, filter.Until)
	}

	query := "SELECT kind, time, outcome, username, fingerprint, instance_id, " +
		"dst_ip, dst_port, duration_ms, error FROM events_" + suffix
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY time DESC LIMIT ?"
	args = append(args, limit)

	var events []audit.Event
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			events = append(events, scanEvent(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("audit store: query events_%s: %w", suffix, err)
	}
	return events, nil
}

func scanEvent(stmt *sqlite.Stmt) audit.Event {
	// Columns: kind(0), time(1), outcome(2), username(3),
	// fingerprint(4), instance_id(5), dst_ip(6), dst_port(7),
	// duration_ms(8), error(9)
	return audit.Event{
		Kind:        stmt.ColumnText(0),
		Time:        stmt.ColumnInt64(1),
		Outcome:     stmt.ColumnText(2),
		Username:    stmt.ColumnText(3),
		Fingerprint: stmt.ColumnText(4),
		InstanceID:  uint64(stmt.ColumnInt64(5)),
		DstIP:       stmt.ColumnText(6),
		DstPort:     stmt.ColumnText(7),
		DurationMS:  stmt.ColumnInt64(8),
		Error:       stmt.ColumnText(9),
	}
}

// Archive describes one compacted spool recorded in the archives table.
type Archive struct {
	ID              int64
	Created         int64 // Unix milliseconds
	Path            string
	Events          int64
	RawBytes        int64
	CompressedBytes int64
	Blake3          string // hex digest of the raw spool bytes
}

// RecordArchive inserts a row describing a spool archive written by
// compact.
func (s *Store) RecordArchive(ctx context.Context, archive Archive) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("audit store: record archive: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO archives
		(created, path, events, raw_bytes, compressed_bytes, blake3)
		VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				archive.Created,
				archive.Path,
				archive.Events,
				archive.RawBytes,
				archive.CompressedBytes,
				archive.Blake3,
			},
		})
	if err != nil {
		return fmt.Errorf("audit store: record archive: %w", err)
	}
	return nil
}

// Archives returns all recorded spool archives, newest first.
func (s *Store) Archives(ctx context.Context) ([]Archive, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit store: archives: %w", err)
	}
	defer s.pool.Put(conn)

	var archives []Archive
	err = sqlitex.Execute(conn,
		`SELECT id, created, path, events, raw_bytes, compressed_bytes, blake3
		 FROM archives ORDER BY created DESC`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				archives = append(archives, Archive{
					ID:              stmt.ColumnInt64(0),
					Created:         stmt.ColumnInt64(1),
					Path:            stmt.ColumnText(2),
					Events:          stmt.ColumnInt64(3),
					RawBytes:        stmt.ColumnInt64(4),
					CompressedBytes: stmt.ColumnInt64(5),
					Blake3:          stmt.ColumnText(6),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("audit store: archives: %w", err)
	}
	return archives, nil
}

// StoreStats summarizes the database for the stats subcommand.
type StoreStats struct {
	PartitionCount    int
	OldestPartition   string
	NewestPartition   string
	EventCount        int64
	ArchiveCount      int64
	DatabaseSizeBytes int64
}

// Stats returns storage statistics.
func (s *Store) Stats(ctx context.Context) (StoreStats, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return StoreStats{}, fmt.Errorf("audit store: stats: %w", err)
	}
	defer s.pool.Put(conn)

	partitions := s.activePartitions()
	stats := StoreStats{PartitionCount: len(partitions)}
	if len(partitions) > 0 {
		stats.NewestPartition = partitions[0]
		stats.OldestPartition = partitions[len(partitions)-1]
	}

	// Database size via page_count * page_size.
	err = sqlitex.Execute(conn,
		"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.DatabaseSizeBytes = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return stats, fmt.Errorf("audit store: database size: %w", err)
	}

	for _, suffix := range partitions {
		count, err := tableRowCount(conn, "events_"+suffix)
		if err != nil {
			return stats, err
		}
		stats.EventCount += count
	}

	count, err := tableRowCount(conn, "archives")
	if err != nil {
		return stats, err
	}
	stats.ArchiveCount = count

	return stats, nil
}

func tableRowCount(conn *sqlite.Conn, tableName string) (int64, error) {
	var count int64
	query := "SELECT COUNT(*) FROM " + tableName
	err := sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("audit store: count %s: %w", tableName, err)
	}
	return count, nil
}
