// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package addrlock serializes calls made against the same instrument
// address, while calls to distinct addresses proceed concurrently.
package addrlock // import "github.com/go-lpc/ionitof/internal/addrlock"

import (
	"sync"
)

// Set holds one lock per instrument address.
// The zero value is ready to use.
type Set struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (set *Set) get(addr string) *sync.Mutex {
	set.mu.Lock()
	defer set.mu.Unlock()

	if set.locks == nil {
		set.locks = make(map[string]*sync.Mutex)
	}
	mu, ok := set.locks[addr]
	if !ok {
		mu = new(sync.Mutex)
		set.locks[addr] = mu
	}
	return mu
}

// Lock locks the provided address and returns the function releasing it.
func (set *Set) Lock(addr string) func() {
	mu := set.get(addr)
	mu.Lock()
	return mu.Unlock
}

// Do runs f while holding the lock of the provided address.
func (set *Set) Do(addr string, f func() error) error {
	unlock := set.Lock(addr)
	defer unlock()
	return f()
}

// Len returns the number of addresses seen so far.
func (set *Set) Len() int {
	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.locks)
}
