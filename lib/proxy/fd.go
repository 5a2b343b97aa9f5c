// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// DetachFD removes conn from the Go runtime and returns its file
// descriptor for handoff across the C ABI. The descriptor is restored to
// blocking mode, matching what a plain connect(2) would have produced
// for the C caller. conn is consumed either way: on success only the
// returned descriptor remains open, on error everything has been closed.
func DetachFD(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		conn.Close()
		return -1, fmt.Errorf("connection type %T does not expose a descriptor", conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		conn.Close()
		return -1, fmt.Errorf("raw connection access: %w", err)
	}
	fd := -1
	var dupErr error
	if err := raw.Control(func(connFD uintptr) {
		fd, dupErr = unix.Dup(int(connFD))
	}); err != nil {
		conn.Close()
		return -1, fmt.Errorf("descriptor control: %w", err)
	}
	if dupErr != nil {
		conn.Close()
		return -1, fmt.Errorf("duplicate descriptor: %w", dupErr)
	}
	// The runtime keeps its sockets non-blocking and the duplicate
	// shares that status flag. Flip it before the runtime's handle goes
	// away; C callers expect a blocking socket.
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		conn.Close()
		return -1, fmt.Errorf("restore blocking mode: %w", err)
	}
	if err := conn.Close(); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("release runtime connection: %w", err)
	}
	return fd, nil
}
