// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import "C"

import (
	"context"
	"unicode/utf8"

	"github.com/exerlab/labgate/lib/proxy"
)

// authenticate resolves and caches the session grant for a completed
// public-key authentication.
//
// It has no return value on purpose: by the time sshd calls it the user
// is already authenticated, so there is nothing to veto. If the lookup
// fails for any reason the session simply has no grant and every later
// proxy_connect refuses before touching the network. Detail goes to the
// log and the audit spool.
//
//export authenticate
func authenticate(username, pubkey *C.char) {
	a, logger := gate()
	name, ok := goString(username)
	if !ok {
		logger.Error("authenticate called with an invalid username string")
		return
	}
	key, ok := goString(pubkey)
	if !ok {
		logger.Error("authenticate called with an invalid public key string")
		return
	}
	a.Authenticate(context.Background(), name, key)
}

// proxy_connect opens a proxied TCP connection to dst_ip:dst_port
// through the connection broker and returns a connected socket
// descriptor, or -1 on any failure.
//
// The descriptor is extracted from the Go runtime at the last possible
// moment; once proxy_connect returns, sshd is the descriptor's only
// owner and the library retains nothing to double-close or leak.
//
//export proxy_connect
func proxy_connect(dstIP, dstPort *C.char) C.int {
	a, logger := gate()
	ip, ok := goString(dstIP)
	if !ok {
		logger.Error("proxy_connect called with an invalid destination address string")
		return -1
	}
	port, ok := goString(dstPort)
	if !ok {
		logger.Error("proxy_connect called with an invalid destination port string")
		return -1
	}
	conn, err := a.ProxyConnect(context.Background(), ip, port)
	if err != nil {
		// Already logged and audited by the agent. The host only ever
		// sees the sentinel.
		return -1
	}
	fd, err := proxy.DetachFD(conn)
	if err != nil {
		logger.Error("descriptor handoff failed", "error", err)
		return -1
	}
	return C.int(fd)
}

// goString copies a C string into Go, rejecting NULL and invalid UTF-8.
// Host strings are validated here, at the trust boundary, so nothing
// downstream ever sees an unchecked value.
func goString(s *C.char) (string, bool) {
	if s == nil {
		return "", false
	}
	value := C.GoString(s)
	if !utf8.ValidString(value) {
		return "", false
	}
	return value, true
}

// main never runs: the package builds with -buildmode=c-shared and sshd
// only calls the exported functions. The toolchain requires it anyway.
func main() {}
