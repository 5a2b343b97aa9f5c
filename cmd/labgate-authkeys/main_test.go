// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"
	"testing"
)

const goodKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA student@lab"

func TestValidKeys(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name string
		keys []string
		want int
	}{
		{
			name: "single valid key",
			keys: []string{goodKey},
			want: 1,
		},
		{
			name: "malformed key dropped",
			keys: []string{"not a key"},
			want: 0,
		},
		{
			name: "malformed key does not poison the rest",
			keys: []string{goodKey, "ssh-ed25519 truncated", goodKey},
			want: 2,
		},
		{
			name: "key with options prefix",
			keys: []string{"no-pty,no-X11-forwarding " + goodKey},
			want: 1,
		},
		{
			name: "empty list",
			keys: nil,
			want: 0,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got := validKeys(test.keys, logger)
			if len(got) != test.want {
				t.Errorf("validKeys kept %d keys, want %d", len(got), test.want)
			}
			for _, key := range got {
				if key == "" {
					t.Error("validKeys returned an empty line")
				}
			}
		})
	}
}
