// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides small network and HTTP I/O helpers shared by
// the labgate packages.
//
// The HTTP response helpers (ReadResponse, DecodeResponse, ErrorBody)
// bound every body read at MaxResponseSize. They are meant for the
// control plane's JSON API answers, which are a grant object or a short
// key list; anything bigger is a misbehaving server, not a payload worth
// buffering.
//
// Bridge splices two TCP connections together; IsExpectedCloseError
// classifies the errors its teardown produces.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize is the bound on control-plane response body reads:
// 1 MB. The largest legitimate answer is an authorized-keys list, a few
// KB even for a key-happy class; the bound only exists so a broken
// server cannot make the agent buffer without limit.
const MaxResponseSize int64 = 1 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes. Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a JSON API response body (up to MaxResponseSize
// bytes) and JSON-decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads an HTTP error response body and returns it as a string
// for diagnostic error messages. Read errors are ignored — a partial or
// empty body is still useful in an error message.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	return string(data)
}
