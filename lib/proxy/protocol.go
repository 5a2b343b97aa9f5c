// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package proxy implements the client side of the platform's connection
// broker protocol. An SSH session that wants to reach a TCP destination
// never dials it directly; it asks the broker to dial on its behalf and,
// once the broker agrees, keeps using the same TCP connection as a
// transparent pipe to the destination.
//
// The package is organized around the connection flow:
//
//   - protocol.go: wire format for the broker handshake (framed request,
//     fixed-size response header)
//   - client.go: dial, handshake exchange, and socket handoff
//   - fd.go: descriptor extraction for the C ABI boundary
package proxy

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Message type tags for the broker handshake. Each frame is a 5-byte
// header (1 byte tag + 4 byte big-endian body length) followed by an
// optional JSON body.
const (
	// MessageTypeProxyRequest opens a handshake. Client→broker only.
	// The body is a JSON-encoded Request.
	MessageTypeProxyRequest byte = 0

	// MessageTypeSuccess reports that the broker reached the
	// destination. Broker→client only, body length zero. Every byte
	// after this frame belongs to the proxied stream.
	MessageTypeSuccess byte = 50

	// MessageTypeFailed reports that the broker could not or would not
	// reach the destination. Broker→client only, body length zero.
	MessageTypeFailed byte = 51
)

// requestMessageType is the discriminator the broker expects inside the
// request body, mirroring the frame tag.
const requestMessageType = "PROXY_REQUEST"

// headerLength is the fixed size of a frame header: 1 byte tag + 4 bytes
// body length.
const headerLength = 5

// maxBodyLength is the largest frame body the broker accepts. A request
// body is a short JSON object, nowhere near the cap; the broker drops
// the connection on anything larger, so the encoder refuses to produce
// such a frame in the first place.
const maxBodyLength = 4096

// Request is the JSON body of a MessageTypeProxyRequest frame.
type Request struct {
	// MsgType is always "PROXY_REQUEST". The broker rechecks it even
	// though the frame tag already identifies the message.
	MsgType string `json:"msg_type"`

	// InstanceID identifies the provisioned environment the connection
	// is attributed to. The broker routes and authorizes by it.
	InstanceID uint64 `json:"instance_id"`

	// DstIP is the destination address the broker should dial.
	DstIP string `json:"dst_ip"`

	// DstPort is the destination port. A string on the wire, not a
	// number: the broker's decoder requires it and the convention
	// predates this client.
	DstPort string `json:"dst_port"`
}

// NewRequest creates a proxy request for the given destination.
func NewRequest(instanceID uint64, dstIP, dstPort string) Request {
	return Request{
		MsgType:    requestMessageType,
		InstanceID: instanceID,
		DstIP:      dstIP,
		DstPort:    dstPort,
	}
}

// WriteRequest writes a framed proxy request to w. The frame format is:
// [1 byte tag] [4 bytes body length, big-endian uint32] [JSON body].
func WriteRequest(w io.Writer, request Request) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	if len(body) > maxBodyLength {
		return fmt.Errorf("request body length %d exceeds maximum %d", len(body), maxBodyLength)
	}
	var header [headerLength]byte
	header[0] = MessageTypeProxyRequest
	binary.BigEndian.PutUint32(header[1:5], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write request header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write request body: %w", err)
	}
	return nil
}

// DecodeRequest parses a request body, enforcing the embedded message
// type discriminator the same way the broker does.
func DecodeRequest(body []byte) (Request, error) {
	var request Request
	if err := json.Unmarshal(body, &request); err != nil {
		return Request{}, fmt.Errorf("decode request body: %w", err)
	}
	if request.MsgType != requestMessageType {
		return Request{}, fmt.Errorf("unexpected message type %q in request body", request.MsgType)
	}
	return request, nil
}

// Header is the fixed 5-byte frame header. Broker responses carry no
// body today (BodyLength is zero for both Success and Failed); the
// length field is still honored so that a future body is never mistaken
// for proxied stream data.
type Header struct {
	Type       byte
	BodyLength uint32
}

// ReadHeader reads a frame header from r. Unknown type tags are returned
// as-is; interpreting them is the caller's job.
func ReadHeader(r io.Reader) (Header, error) {
	var header [headerLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Header{}, fmt.Errorf("read frame header: %w", err)
	}
	return Header{
		Type:       header[0],
		BodyLength: binary.BigEndian.Uint32(header[1:5]),
	}, nil
}

// ReadBody reads a frame body of the given length from r. Returns an
// error if the length exceeds the broker's frame cap.
func ReadBody(r io.Reader, length uint32) ([]byte, error) {
	if length > maxBodyLength {
		return nil, fmt.Errorf("body length %d exceeds maximum %d", length, maxBodyLength)
	}
	if length == 0 {
		return nil, nil
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return body, nil
}

// WriteResponse writes a bodyless response frame with the given type
// tag. Success and Failed responses never carry a body.
func WriteResponse(w io.Writer, messageType byte) error {
	var header [headerLength]byte
	header[0] = messageType
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write response header: %w", err)
	}
	return nil
}
