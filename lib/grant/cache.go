// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package grant

import "sync"

// Cache holds the process's single session grant. sshd forks one
// process per connection and each process authenticates exactly once,
// so the cache is a slot, not a map: set once, read many.
//
// A Cache is safe for concurrent use. The zero value is ready.
type Cache struct {
	mu    sync.Mutex
	grant Grant
	set   bool
}

// Set stores the grant. Storing a second grant is a bug in the host
// integration (one process serves one session): Set panics rather than
// silently replacing an authorization decision.
func (c *Cache) Set(g Grant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set {
		panic("grant: session grant already set")
	}
	c.grant = g
	c.set = true
}

// Get returns a copy of the stored grant and whether one has been
// stored.
func (c *Cache) Get() (Grant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grant, c.set
}
