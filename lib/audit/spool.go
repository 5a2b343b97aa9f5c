// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Spool appends events to a file as a CBOR sequence. Each sshd session
// runs in its own process, so several processes append to the same
// spool concurrently: every record goes out in a single O_APPEND write,
// which the kernel keeps whole.
//
// The file is opened per append rather than held open. A session
// process never shuts down cleanly (sshd kills it when the session
// ends), so there is no place to flush or close a long-lived handle.
type Spool struct {
	path string
}

// NewSpool returns a spool that appends to the file at path. The file
// is created on first append; its directory must already exist.
func NewSpool(path string) *Spool {
	return &Spool{path: path}
}

// Path returns the spool file path.
func (s *Spool) Path() string {
	return s.path
}

// Append encodes the event and appends it to the spool in one write.
func (s *Spool) Append(event Event) error {
	data, err := Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	file, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open audit spool: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("append audit event: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close audit spool: %w", err)
	}
	return nil
}

// ReadAll decodes every event in a spool stream. A truncated final
// record (a session process killed mid-write can leave one) returns the
// complete events before it along with the error, so a damaged tail
// never hides an intact history.
func ReadAll(r io.Reader) ([]Event, error) {
	decoder := decMode.NewDecoder(r)
	var events []Event
	for {
		var event Event
		if err := decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, fmt.Errorf("decode audit event %d: %w", len(events), err)
		}
		events = append(events, event)
	}
}

// ReadFile decodes every event in the spool file at path. A missing
// file is an empty spool, not an error.
func ReadFile(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit spool: %w", err)
	}
	defer file.Close()
	return ReadAll(file)
}
