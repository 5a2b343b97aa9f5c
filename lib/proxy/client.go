// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// DefaultTimeout bounds a complete handshake: dialing the broker,
// writing the request, and reading the response. The broker answers as
// soon as its own upstream dial settles, so thirty seconds of silence
// means the connection is not coming.
const DefaultTimeout = 30 * time.Second

// ErrRejected is returned when the broker answers a handshake with
// MessageTypeFailed. The wire does not say why; the broker's own logs
// do.
var ErrRejected = errors.New("broker rejected the connection request")

// ProtocolError is returned when the broker answers with a type tag this
// client does not know. The offending value is preserved for
// diagnostics.
type ProtocolError struct {
	Type byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unknown broker response type %d", e.Type)
}

// Client performs handshakes with the connection broker. Fields are set
// once at construction; a Client is safe for concurrent use.
type Client struct {
	// Address is the broker's host:port.
	Address string

	// Timeout bounds a whole handshake, dial included. Zero means
	// DefaultTimeout.
	Timeout time.Duration

	// Logger receives handshake diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// Connect asks the broker to dial dstIP:dstPort on behalf of the given
// instance and returns the connection carrying the proxied stream.
//
// On success the caller owns the returned connection: no deadline is
// left on it and the client keeps no reference. On any error the
// underlying connection, if one was established, has been closed. A
// handshake is a single attempt; the broker's answer is final.
func (c *Client) Connect(ctx context.Context, instanceID uint64, dstIP, dstPort string) (net.Conn, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return nil, fmt.Errorf("dial broker %s: %w", c.Address, err)
	}

	// One absolute deadline covers the request and the response, so a
	// stalled broker cannot hold the handshake open past the timeout.
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set handshake deadline: %w", err)
	}
	if err := WriteRequest(conn, NewRequest(instanceID, dstIP, dstPort)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send proxy request: %w", err)
	}
	header, err := ReadHeader(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read broker response: %w", err)
	}

	switch header.Type {
	case MessageTypeSuccess:
	case MessageTypeFailed:
		conn.Close()
		return nil, ErrRejected
	default:
		conn.Close()
		logger.Warn("broker sent a response type this client does not understand",
			"type", header.Type,
			"broker", c.Address)
		return nil, &ProtocolError{Type: header.Type}
	}

	// A success frame carries no body today. If one ever does, it is
	// part of the handshake, not the proxied stream: consume it so the
	// caller's first read returns proxied data.
	if header.BodyLength > 0 {
		if _, err := ReadBody(conn, header.BodyLength); err != nil {
			conn.Close()
			return nil, fmt.Errorf("read success body: %w", err)
		}
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clear handshake deadline: %w", err)
	}
	logger.Debug("proxied connection established",
		"broker", c.Address,
		"dst_ip", dstIP,
		"dst_port", dstPort)
	return conn, nil
}
