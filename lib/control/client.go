// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package control provides a typed HTTP client for the control plane's
// SSH integration API. The entry host uses it at two points in a
// session's life: when sshd validates a public key (authorized-keys
// lookup) and immediately after a key authenticates (grant issuance).
//
// The client mirrors the control plane's wire format with its own
// request and response types; the control plane itself lives elsewhere.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/exerlab/labgate/lib/grant"
	"github.com/exerlab/labgate/lib/netutil"
)

// Client is a typed HTTP client for the control plane's SSH API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the control plane at baseURL (for example
// "http://web:8000"). The timeout bounds each request end to end; zero
// means no client-side bound.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SSHAuthenticated reports a completed public-key authentication to the
// control plane and returns the session grant it issues. The pubkey is
// the authorized_keys form of the key exactly as sshd presented it; the
// control plane matches it by string equality.
func (client *Client) SSHAuthenticated(ctx context.Context, name, pubkey string) (grant.Grant, error) {
	request := struct {
		Name   string `json:"name"`
		Pubkey string `json:"pubkey"`
	}{
		Name:   name,
		Pubkey: pubkey,
	}

	response, err := client.post(ctx, "/api/ssh-authenticated", request)
	if err != nil {
		return grant.Grant{}, fmt.Errorf("ssh-authenticated: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return grant.Grant{}, fmt.Errorf("ssh-authenticated: HTTP %d: %s", response.StatusCode, netutil.ErrorBody(response.Body))
	}

	var result grant.Grant
	if err := netutil.DecodeResponse(response.Body, &result); err != nil {
		return grant.Grant{}, fmt.Errorf("ssh-authenticated: %w", err)
	}
	return result, nil
}

// AuthorizedKeys returns the public keys the control plane currently
// permits for the given username, in authorized_keys line format.
// An empty list is a valid answer: the user exists but may not log in.
func (client *Client) AuthorizedKeys(ctx context.Context, username string) ([]string, error) {
	request := struct {
		Username string `json:"username"`
	}{
		Username: username,
	}

	response, err := client.post(ctx, "/api/getkeys", request)
	if err != nil {
		return nil, fmt.Errorf("getkeys: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getkeys: HTTP %d: %s", response.StatusCode, netutil.ErrorBody(response.Body))
	}

	var result struct {
		Keys []string `json:"keys"`
	}
	if err := netutil.DecodeResponse(response.Body, &result); err != nil {
		return nil, fmt.Errorf("getkeys: %w", err)
	}
	return result.Keys, nil
}

// post makes a POST request to the control plane with a JSON body.
func (client *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	return client.httpClient.Do(request)
}
