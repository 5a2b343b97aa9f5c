// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/pflag"
	"github.com/zeebo/blake3"

	"github.com/exerlab/labgate/lib/audit"
	"github.com/exerlab/labgate/lib/cli"
)

func compactCommand() *cli.Command {
	var configPath string
	var spoolPath string
	var storePath string
	var archiveDir string

	return &cli.Command{
		Name:    "compact",
		Summary: "Ingest, archive (zstd + BLAKE3), and reset the spool",
		Description: `Rotate the spool aside, ingest its events into the store, write a
zstd-compressed archive of the raw spool bytes, record the archive (path,
sizes, BLAKE3 digest) in the store, and delete the rotated spool.

Rotation is a rename, so agents keep appending to a fresh spool while
compact works. Each record ends up in the store exactly once in the
normal case; a compact interrupted mid-way is resumed by the next run.`,
		Usage: "labgate-audit compact [flags]",
		Examples: []cli.Example{
			{
				Description: "Compact the configured spool into the default store",
				Command:     "labgate-audit compact",
			},
			{
				Description: "Keep archives on scratch storage",
				Command:     "labgate-audit compact --archive-dir /scratch/labgate/archive",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("compact", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "path to labgate.yaml (default: $LABGATE_CONFIG)")
			flagSet.StringVar(&spoolPath, "spool", "", "spool file (default: from config)")
			flagSet.StringVar(&storePath, "db", defaultStorePath, "SQLite event store")
			flagSet.StringVar(&archiveDir, "archive-dir", defaultArchiveDir, "directory for spool archives")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("compact takes no arguments, got %d", len(args))
			}
			return runCompact(configPath, spoolPath, storePath, archiveDir)
		},
	}
}

func runCompact(configPath, spoolFlag, storePath, archiveDir string) error {
	logger := cli.NewCommandLogger(slog.LevelInfo).With("command", "audit/compact")

	spool, err := resolveSpool(configPath, spoolFlag)
	if err != nil {
		return err
	}

	store, err := OpenStore(storePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := compactSpool(context.Background(), store, spool, archiveDir, logger)
	if err != nil {
		return err
	}
	if result == nil {
		logger.Info("spool is empty, nothing to compact", "spool", spool)
		return nil
	}
	logger.Info("spool compacted",
		"spool", spool,
		"events", result.Events,
		"archive", result.ArchivePath,
		"raw_bytes", result.RawBytes,
		"compressed_bytes", result.CompressedBytes,
		"blake3", result.Digest)
	return nil
}

// compactResult describes a completed compaction.
type compactResult struct {
	Events          int
	ArchivePath     string
	RawBytes        int64
	CompressedBytes int64
	Digest          string
}

// compactSpool moves the spool's current contents into the store and an
// archive file, exactly once in the normal case. Returns nil when there
// was nothing to compact.
//
// The flow is rotate → ingest → archive → delete. Rotation renames the
// spool to a fixed ".compacting" name: agents open the spool per append,
// so after the rename they recreate a fresh spool and the rotated file
// quiesces. If a previous run crashed partway, its rotated file is still
// there and is finished first; a crash between ingest and delete means
// those events ingest twice on resume — tolerable for an advisory store,
// and the archive digest identifies the overlap.
func compactSpool(ctx context.Context, store *Store, spoolPath, archiveDir string, logger *slog.Logger) (*compactResult, error) {
	rotated := spoolPath + ".compacting"
	if _, err := os.Stat(rotated); err == nil {
		logger.Warn("resuming an interrupted compact", "file", rotated)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking for an interrupted compact: %w", err)
	} else if err := os.Rename(spoolPath, rotated); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("rotating spool: %w", err)
	}

	raw, err := os.ReadFile(rotated)
	if err != nil {
		return nil, fmt.Errorf("reading rotated spool: %w", err)
	}
	if len(raw) == 0 {
		if err := os.Remove(rotated); err != nil {
			return nil, fmt.Errorf("removing empty rotated spool: %w", err)
		}
		return nil, nil
	}

	events, readErr := audit.ReadAll(bytes.NewReader(raw))
	if readErr != nil {
		// Nobody appends to the rotated file anymore, so a torn final
		// record is permanent: a session process died mid-append. The
		// store gets the intact events; the archive below keeps every
		// raw byte, torn tail included.
		logger.Warn("rotated spool has a truncated final record",
			"intact_events", len(events),
			"error", readErr)
	}

	if err := store.IngestEvents(ctx, events); err != nil {
		// The rotated file stays put; the next run resumes it.
		return nil, err
	}

	archivePath, compressedBytes, err := writeArchive(archiveDir, raw)
	if err != nil {
		return nil, err
	}
	digest := blake3.Sum256(raw)
	archive := Archive{
		Created:         time.Now().UnixMilli(),
		Path:            archivePath,
		Events:          int64(len(events)),
		RawBytes:        int64(len(raw)),
		CompressedBytes: compressedBytes,
		Blake3:          hex.EncodeToString(digest[:]),
	}
	if err := store.RecordArchive(ctx, archive); err != nil {
		return nil, err
	}

	if err := os.Remove(rotated); err != nil {
		return nil, fmt.Errorf("removing compacted spool: %w", err)
	}
	return &compactResult{
		Events:          len(events),
		ArchivePath:     archivePath,
		RawBytes:        archive.RawBytes,
		CompressedBytes: archive.CompressedBytes,
		Digest:          archive.Blake3,
	}, nil
}

// zstdEncoder is shared across archives; zstd.Encoder is safe for
// concurrent use with EncodeAll.
var zstdEncoder *zstd.Encoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("labgate-audit: zstd encoder initialization failed: " + err.Error())
	}
}

// archiveTimeFormat names archives by their UTC compaction time.
const archiveTimeFormat = "20060102T150405Z"

// writeArchive writes the raw spool bytes zstd-compressed into
// archiveDir and returns the archive path and compressed size. A second
// compaction within the same second gets a numeric suffix.
func writeArchive(archiveDir string, raw []byte) (string, int64, error) {
	if err := os.MkdirAll(archiveDir, 0o700); err != nil {
		return "", 0, fmt.Errorf("creating archive directory: %w", err)
	}
	compressed := zstdEncoder.EncodeAll(raw, nil)
	stamp := time.Now().UTC().Format(archiveTimeFormat)

	for attempt := 0; ; attempt++ {
		name := fmt.Sprintf("audit-%s.spool.zst", stamp)
		if attempt > 0 {
			name = fmt.Sprintf("audit-%s-%d.spool.zst", stamp, attempt)
		}
		path := filepath.Join(archiveDir, name)

		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", 0, fmt.Errorf("creating archive file: %w", err)
		}
		if _, err := file.Write(compressed); err != nil {
			file.Close()
			os.Remove(path)
			return "", 0, fmt.Errorf("writing archive: %w", err)
		}
		if err := file.Close(); err != nil {
			os.Remove(path)
			return "", 0, fmt.Errorf("closing archive: %w", err)
		}
		return path, int64(len(compressed)), nil
	}
}
