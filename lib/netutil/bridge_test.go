// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
	"testing"
)

func TestBridgeRelaysBothDirections(t *testing.T) {
	t.Parallel()
	clientSide, clientPeer := net.Pipe()
	upstreamSide, upstreamPeer := net.Pipe()

	bridgeDone := make(chan error, 1)
	go func() {
		bridgeDone <- Bridge(clientPeer, upstreamPeer)
	}()

	// client → upstream
	go clientSide.Write([]byte("request"))
	got := make([]byte, 7)
	if _, err := io.ReadFull(upstreamSide, got); err != nil {
		t.Fatalf("upstream read: %v", err)
	}
	if string(got) != "request" {
		t.Errorf("upstream received %q, want %q", got, "request")
	}

	// upstream → client
	go upstreamSide.Write([]byte("reply"))
	got = make([]byte, 5)
	if _, err := io.ReadFull(clientSide, got); err != nil {
		t.Fatalf("client read: %v", err)
	}
	if string(got) != "reply" {
		t.Errorf("client received %q, want %q", got, "reply")
	}

	// One side hangs up; the bridge must close the other and report a
	// clean termination.
	clientSide.Close()
	if err := <-bridgeDone; err != nil {
		t.Errorf("Bridge returned %v, want nil for a normal close", err)
	}
	if _, err := upstreamSide.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Errorf("upstream read after teardown: got %v, want EOF", err)
	}
}

func TestIsExpectedCloseError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "eof", err: io.EOF, want: true},
		{name: "wrapped eof", err: errors.Join(errors.New("copy"), io.EOF), want: true},
		{name: "closed connection", err: net.ErrClosed, want: true},
		{name: "broken pipe", err: syscall.EPIPE, want: true},
		{name: "connection reset", err: syscall.ECONNRESET, want: true},
		{name: "refused is unexpected", err: syscall.ECONNREFUSED, want: false},
		{name: "arbitrary error", err: errors.New("boom"), want: false},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if got := IsExpectedCloseError(test.err); got != test.want {
				t.Errorf("IsExpectedCloseError(%v): got %t, want %t", test.err, got, test.want)
			}
		})
	}
}
