// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit records the agent's authorization and connection
// decisions. Events are appended to a spool file as a CBOR sequence;
// the labgate-audit tool reads the spool, loads it into a queryable
// store, and archives it.
//
// Auditing is advisory: a full disk or missing spool directory must
// never block an SSH session, so writers log append failures and move
// on.
package audit

import (
	"github.com/fxamacker/cbor/v2"
)

// Event kinds.
const (
	// KindAuth records a public-key authentication lookup.
	KindAuth = "auth"

	// KindConnect records a proxied connection attempt.
	KindConnect = "connect"
)

// Event outcomes.
const (
	// OutcomeOK means the operation succeeded.
	OutcomeOK = "ok"

	// OutcomeDenied means a policy said no: the control plane refused
	// the key, the session has no grant, forwarding is disabled, or the
	// broker rejected the destination.
	OutcomeDenied = "denied"

	// OutcomeError means infrastructure failed: the control plane or
	// broker was unreachable, timed out, or answered gibberish.
	OutcomeError = "error"
)

// Event is a single audit record. Kind decides which of the optional
// fields are meaningful.
type Event struct {
	// Kind is KindAuth or KindConnect.
	Kind string `cbor:"kind" json:"kind"`

	// Time is the event time in Unix milliseconds.
	Time int64 `cbor:"time_ms" json:"time_ms"`

	// Outcome is OutcomeOK, OutcomeDenied, or OutcomeError.
	Outcome string `cbor:"outcome" json:"outcome"`

	// Username is the SSH login name (auth events).
	Username string `cbor:"username,omitempty" json:"username,omitempty"`

	// Fingerprint is the SHA256 fingerprint of the presented public
	// key, when it parses (auth events).
	Fingerprint string `cbor:"fingerprint,omitempty" json:"fingerprint,omitempty"`

	// InstanceID is the environment the session was granted (auth
	// events with OutcomeOK) or charged to (connect events).
	InstanceID uint64 `cbor:"instance_id,omitempty" json:"instance_id,omitempty"`

	// DstIP and DstPort are the requested destination (connect events).
	DstIP   string `cbor:"dst_ip,omitempty" json:"dst_ip,omitempty"`
	DstPort string `cbor:"dst_port,omitempty" json:"dst_port,omitempty"`

	// DurationMS is how long the operation took, in milliseconds.
	DurationMS int64 `cbor:"duration_ms,omitempty" json:"duration_ms,omitempty"`

	// Error is the diagnostic detail for non-OK outcomes. Free text,
	// never parsed.
	Error string `cbor:"error,omitempty" json:"error,omitempty"`
}

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer encoding,
// no indefinite-length items. The same event always produces identical
// bytes, which keeps spool diffs and digests stable.
var encMode cbor.EncMode

// decMode is the CBOR decoder. Unknown fields are ignored so old tools
// can read spools written by newer agents.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("audit: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("audit: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes an event to CBOR using Core Deterministic Encoding.
func Marshal(event Event) ([]byte, error) {
	return encMode.Marshal(event)
}

// Unmarshal decodes CBOR data into an event.
func Unmarshal(data []byte, event *Event) error {
	return decMode.Unmarshal(data, event)
}
