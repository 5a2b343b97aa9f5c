// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package grant defines the session authorization grant issued by the
// control plane when a public key authenticates, and the process-wide
// cache that holds it for the lifetime of the SSH session.
package grant

import (
	"bytes"
	"fmt"
)

// Grant is the control plane's answer to a successful public-key
// authentication: which provisioned environment the session belongs to
// and what the session is allowed to do.
type Grant struct {
	// InstanceID identifies the provisioned exercise environment. It is
	// opaque to the agent and passed through to the connection broker.
	InstanceID uint64 `json:"instance_id"`

	// IsAdmin marks platform administrators.
	IsAdmin Bool `json:"is_admin"`

	// IsGradingAssistant marks graders, who may enter environments they
	// do not own.
	IsGradingAssistant Bool `json:"is_grading_assistant"`

	// TCPForwardingAllowed gates proxied connections for this session.
	TCPForwardingAllowed Bool `json:"tcp_forwarding_allowed"`
}

// Bool decodes both JSON booleans and the 0/1 integers the control
// plane's legacy serializer emits for flag fields. It marshals as a
// regular boolean.
type Bool bool

func (b *Bool) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", "1":
		*b = true
	case "false", "0":
		*b = false
	default:
		return fmt.Errorf("flag value %s is neither a boolean nor 0/1", data)
	}
	return nil
}
