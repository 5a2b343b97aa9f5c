// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"io"
	"net"
)

// bridgeResult holds the outcome of one direction of a bidirectional
// copy.
type bridgeResult struct {
	bytesCopied int64
	err         error
}

// Bridge copies bytes bidirectionally between two connections until
// either side disconnects, then closes both. The close is a full close,
// not a half close, so the surviving direction's in-flight read or write
// fails immediately instead of lingering.
//
// Returns the error from the direction that terminated first, or nil
// when termination was a normal close (EOF, peer disconnect, broken
// pipe, connection reset).
func Bridge(a, b net.Conn) error {
	done := make(chan bridgeResult, 2)

	go func() {
		bytesCopied, err := io.Copy(b, a)
		done <- bridgeResult{bytesCopied, err}
	}()

	go func() {
		bytesCopied, err := io.Copy(a, b)
		done <- bridgeResult{bytesCopied, err}
	}()

	// Wait for one direction to finish, then close both to unblock the
	// other.
	first := <-done
	a.Close()
	b.Close()
	<-done

	if first.err != nil && !IsExpectedCloseError(first.err) {
		return first.err
	}
	return nil
}
