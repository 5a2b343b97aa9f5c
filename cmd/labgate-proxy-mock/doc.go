// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

// Labgate-proxy-mock is a development stand-in for the connection
// broker. It accepts broker handshakes, validates the request frame the
// way the real server does, and then behaves according to --mode:
//
//	relay    dial the requested destination and splice (default)
//	echo     accept and echo the proxied bytes back
//	reject   answer every request with Failed
//	silent   never answer, for client timeout testing
//	garbage  answer with a response type no client knows
//
// Intended for local development of the gateway agent and for exercising
// failure paths that are awkward to reproduce against a real broker.
package main
