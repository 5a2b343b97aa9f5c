// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"sync"
	"testing"
)

func TestCacheGetBeforeSet(t *testing.T) {
	t.Parallel()
	var cache Cache
	if _, ok := cache.Get(); ok {
		t.Fatal("empty cache reported a grant")
	}
}

func TestCacheSetThenGet(t *testing.T) {
	t.Parallel()
	var cache Cache
	want := Grant{InstanceID: 41, TCPForwardingAllowed: true}
	cache.Set(want)

	got, ok := cache.Get()
	if !ok {
		t.Fatal("cache reported no grant after Set")
	}
	if got != want {
		t.Errorf("grant: got %+v, want %+v", got, want)
	}
}

func TestCacheSecondSetPanics(t *testing.T) {
	t.Parallel()
	var cache Cache
	cache.Set(Grant{InstanceID: 1})

	defer func() {
		if recover() == nil {
			t.Fatal("second Set did not panic")
		}
		// The first grant must survive the attempted overwrite.
		got, ok := cache.Get()
		if !ok || got.InstanceID != 1 {
			t.Errorf("grant after rejected overwrite: got %+v (set=%t), want instance 1", got, ok)
		}
	}()
	cache.Set(Grant{InstanceID: 2})
}

func TestCacheConcurrentGet(t *testing.T) {
	t.Parallel()
	var cache Cache
	cache.Set(Grant{InstanceID: 9})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, ok := cache.Get()
			if !ok || got.InstanceID != 9 {
				t.Errorf("concurrent Get: got %+v (set=%t), want instance 9", got, ok)
			}
		}()
	}
	wg.Wait()
}
