// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/exerlab/labgate/lib/audit"
)

// writeTestSpool appends the events to a spool file at path.
func writeTestSpool(t *testing.T, path string, events []audit.Event) {
	t.Helper()
	spool := audit.NewSpool(path)
	for _, event := range events {
		if err := spool.Append(event); err != nil {
			t.Fatalf("spool append: %v", err)
		}
	}
}

func TestCompactSpoolRoundTrip(t *testing.T) {
	dir := t.TempDir()
	spoolPath := filepath.Join(dir, "audit.spool")
	archiveDir := filepath.Join(dir, "archive")
	events := testEvents()
	writeTestSpool(t, spoolPath, events)
	store := openTestStore(t)
	ctx := context.Background()

	result, err := compactSpool(ctx, store, spoolPath, archiveDir, testLogger())
	if err != nil {
		t.Fatalf("compactSpool: %v", err)
	}
	if result == nil {
		t.Fatal("compactSpool returned nil for a populated spool")
	}
	if result.Events != len(events) {
		t.Errorf("events compacted: got %d, want %d", result.Events, len(events))
	}

	// The spool and its rotation are gone; agents will recreate the
	// spool on the next append.
	if _, err := os.Stat(spoolPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("spool still present after compact: %v", err)
	}
	if _, err := os.Stat(spoolPath + ".compacting"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("rotated spool still present after compact: %v", err)
	}

	// The archive decompresses to the original raw spool bytes, and the
	// recorded digest matches them.
	compressed, err := os.ReadFile(result.ArchivePath)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if int64(len(compressed)) != result.CompressedBytes {
		t.Errorf("archive size: got %d bytes on disk, result says %d", len(compressed), result.CompressedBytes)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer decoder.Close()
	raw, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		t.Fatalf("decompress archive: %v", err)
	}
	if int64(len(raw)) != result.RawBytes {
		t.Errorf("raw size: got %d, want %d", len(raw), result.RawBytes)
	}
	digest := blake3.Sum256(raw)
	if hex.EncodeToString(digest[:]) != result.Digest {
		t.Errorf("digest mismatch: archive bytes hash to %x, result says %s", digest, result.Digest)
	}
	restored, err := audit.ReadAll(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode archived spool: %v", err)
	}
	if len(restored) != len(events) {
		t.Errorf("archived events: got %d, want %d", len(restored), len(events))
	}

	// The store has the events and the archive row.
	stored, err := store.QueryEvents(ctx, EventFilter{})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(stored) != len(events) {
		t.Errorf("stored events: got %d, want %d", len(stored), len(events))
	}
	archives, err := store.Archives(ctx)
	if err != nil {
		t.Fatalf("Archives: %v", err)
	}
	if len(archives) != 1 {
		t.Fatalf("got %d archive rows, want 1", len(archives))
	}
	if archives[0].Path != result.ArchivePath || archives[0].Blake3 != result.Digest {
		t.Errorf("archive row: got %+v, want path %s digest %s",
			archives[0], result.ArchivePath, result.Digest)
	}
	if archives[0].Events != int64(len(events)) {
		t.Errorf("archive row events: got %d, want %d", archives[0].Events, len(events))
	}
}

func TestCompactSpoolMissing(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t)

	result, err := compactSpool(context.Background(), store,
		filepath.Join(dir, "no-such.spool"), filepath.Join(dir, "archive"), testLogger())
	if err != nil {
		t.Fatalf("compactSpool: %v", err)
	}
	if result != nil {
		t.Errorf("got %+v for a missing spool, want nil", result)
	}
}

func TestCompactSpoolEmpty(t *testing.T) {
	dir := t.TempDir()
	spoolPath := filepath.Join(dir, "audit.spool")
	if err := os.WriteFile(spoolPath, nil, 0o600); err != nil {
		t.Fatalf("create empty spool: %v", err)
	}
	store := openTestStore(t)

	result, err := compactSpool(context.Background(), store,
		spoolPath, filepath.Join(dir, "archive"), testLogger())
	if err != nil {
		t.Fatalf("compactSpool: %v", err)
	}
	if result != nil {
		t.Errorf("got %+v for an empty spool, want nil", result)
	}
	if _, err := os.Stat(spoolPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("empty spool not cleaned up: %v", err)
	}
}

func TestCompactResumesInterruptedRun(t *testing.T) {
	dir := t.TempDir()
	spoolPath := filepath.Join(dir, "audit.spool")
	archiveDir := filepath.Join(dir, "archive")

	// A previous compact crashed after rotating: the rotated file holds
	// two events, and agents have started a fresh spool since.
	interrupted := testEvents()[:2]
	writeTestSpool(t, spoolPath+".compacting", interrupted)
	live := testEvents()[2:3]
	writeTestSpool(t, spoolPath, live)
	store := openTestStore(t)

	result, err := compactSpool(context.Background(), store, spoolPath, archiveDir, testLogger())
	if err != nil {
		t.Fatalf("compactSpool: %v", err)
	}
	if result == nil || result.Events != len(interrupted) {
		t.Fatalf("resumed compact: got %+v, want %d events", result, len(interrupted))
	}

	// The live spool is untouched; the next run picks it up.
	liveEvents, err := audit.ReadFile(spoolPath)
	if err != nil {
		t.Fatalf("read live spool: %v", err)
	}
	if len(liveEvents) != len(live) {
		t.Errorf("live spool: got %d events, want %d untouched", len(liveEvents), len(live))
	}
}

func TestCompactTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	spoolPath := filepath.Join(dir, "audit.spool")
	archiveDir := filepath.Join(dir, "archive")
	events := testEvents()[:2]
	writeTestSpool(t, spoolPath, events)

	// A session process died mid-append: the spool ends in a partial
	// CBOR record.
	file, err := os.OpenFile(spoolPath, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		t.Fatalf("open spool: %v", err)
	}
	torn := []byte{0xa5, 0x64, 0x6b, 0x69}
	if _, err := file.Write(torn); err != nil {
		t.Fatalf("append torn record: %v", err)
	}
	file.Close()
	expectedRaw, err := os.ReadFile(spoolPath)
	if err != nil {
		t.Fatalf("read spool: %v", err)
	}
	store := openTestStore(t)

	result, err := compactSpool(context.Background(), store, spoolPath, archiveDir, testLogger())
	if err != nil {
		t.Fatalf("compactSpool: %v", err)
	}
	if result == nil {
		t.Fatal("compactSpool returned nil for a spool with intact events")
	}
	if result.Events != len(events) {
		t.Errorf("intact events: got %d, want %d", result.Events, len(events))
	}
	// The archive preserves every byte, torn tail included.
	if result.RawBytes != int64(len(expectedRaw)) {
		t.Errorf("archived raw bytes: got %d, want %d (with torn tail)", result.RawBytes, len(expectedRaw))
	}

	stored, err := store.QueryEvents(context.Background(), EventFilter{})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(stored) != len(events) {
		t.Errorf("stored events: got %d, want %d", len(stored), len(events))
	}
}

func TestWriteArchiveAvoidsNameCollision(t *testing.T) {
	archiveDir := filepath.Join(t.TempDir(), "archive")

	firstPath, _, err := writeArchive(archiveDir, []byte("first spool"))
	if err != nil {
		t.Fatalf("writeArchive: %v", err)
	}
	secondPath, _, err := writeArchive(archiveDir, []byte("second spool"))
	if err != nil {
		t.Fatalf("writeArchive: %v", err)
	}
	// Two archives within the same second must not overwrite each
	// other. (When the clock ticks between calls the names differ
	// anyway.)
	if firstPath == secondPath {
		t.Errorf("both archives written to %s", firstPath)
	}
	for _, path := range []string{firstPath, secondPath} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("archive %s: %v", path, err)
		}
	}
}
