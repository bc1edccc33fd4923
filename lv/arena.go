// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lv models the handle-based dynamic memory exchanged with
// LabVIEW-built instrument libraries.
//
// A handle is a stable reference to a relocatable block.
// The block starts with a header holding one int32 size per dimension,
// followed by the element payload.
// Handles are allocated, resized and released through an Arena.
package lv // import "github.com/go-lpc/ionitof/lv"

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/go-lpc/ionitof/internal/mmap"
)

var (
	ErrAllocation = errors.New("lv: allocation failure")
	ErrReleased   = errors.New("lv: handle already released")
	ErrNilHandle  = errors.New("lv: nil handle")
	ErrKind       = errors.New("lv: invalid handle kind")
)

// Arena allocates and tracks handles.
// An Arena is safe for concurrent use, a given Handle is not.
type Arena struct {
	mu   sync.Mutex
	next uint32
	live map[uint32]*Handle

	limit int // maximum block size in bytes. 0 means no limit.
	mmap  func(size int) (*mmap.Block, error)
}

// Option configures an Arena.
type Option func(a *Arena)

// WithLimit sets the maximum size in bytes of a single block.
// Requests exceeding that size fail with ErrAllocation.
func WithLimit(n int) Option {
	return func(a *Arena) {
		a.limit = n
	}
}

// NewArena creates a new arena backed by anonymous memory mappings.
func NewArena(opts ...Option) *Arena {
	a := &Arena{
		live: make(map[uint32]*Handle),
		mmap: mmap.Anon,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Live returns the number of allocated and not yet released handles.
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// Lookup returns the live handle with the provided identifier, or nil.
func (a *Arena) Lookup(id uint32) *Handle {
	if id == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live[id]
}

// Allocate allocates a 1-dim handle holding n elements of kind k.
// Allocate(k, 0) returns a valid, empty handle.
// On failure, the returned handle is nil.
func (a *Arena) Allocate(k Kind, n int) (*Handle, error) {
	if k == Cluster || k == Invalid {
		return nil, fmt.Errorf("%w: cannot allocate %v array", ErrKind, k)
	}
	return a.allocate(k, nil, []int{n})
}

// Allocate2D allocates a 2-dim handle of rows×cols elements of kind k.
func (a *Arena) Allocate2D(k Kind, rows, cols int) (*Handle, error) {
	if k == Cluster || k == Invalid || k == String {
		return nil, fmt.Errorf("%w: cannot allocate 2-dim %v array", ErrKind, k)
	}
	return a.allocate(k, nil, []int{rows, cols})
}

// AllocateRecords allocates a handle holding n zeroed records.
// All handle-typed members of the records are null.
func (a *Arena) AllocateRecords(lay *Layout, n int) (*Handle, error) {
	if lay == nil {
		return nil, fmt.Errorf("%w: nil record layout", ErrKind)
	}
	return a.allocate(Cluster, lay, []int{n})
}

func (a *Arena) allocate(k Kind, lay *Layout, dims []int) (*Handle, error) {
	n, err := count(dims)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		kind:  k,
		rank:  len(dims),
		lay:   lay,
		arena: a,
	}

	size, err := blockSize(h, n)
	if err != nil {
		return nil, err
	}

	blk, err := a.block(size)
	if err != nil {
		return nil, err
	}
	h.blk = blk
	h.setDims(dims)

	a.mu.Lock()
	a.next++
	h.id = a.next
	a.live[h.id] = h
	a.mu.Unlock()

	return h, nil
}

func (a *Arena) block(size int) (*mmap.Block, error) {
	if a.limit > 0 && size > a.limit {
		return nil, fmt.Errorf(
			"%w: block of %d bytes exceeds limit (%d bytes)",
			ErrAllocation, size, a.limit,
		)
	}
	blk, err := a.mmap(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAllocation, err)
	}
	return blk, nil
}

// Resize changes the dimensions of h.
// The payload is preserved up to the smaller of the old and new sizes,
// new elements are zeroed.
// Elements dropped from string-reference and record handles release
// the handles they own.
//
// Resize may relocate the payload: views obtained before the call
// must not be used after it.
// On failure, h is left untouched.
func (a *Arena) Resize(h *Handle, dims ...int) error {
	err := a.check(h)
	if err != nil {
		return err
	}
	if len(dims) != h.rank {
		return fmt.Errorf("lv: invalid resize rank (got=%d, want=%d)", len(dims), h.rank)
	}
	n, err := count(dims)
	if err != nil {
		return err
	}

	size, err := blockSize(h, n)
	if err != nil {
		return err
	}
	if size == h.blk.Len() {
		h.setDims(dims)
		return nil
	}

	blk, err := a.block(size)
	if err != nil {
		return err
	}

	if old := h.Len(); n < old {
		err = h.releaseElems(n, old)
		if err != nil {
			_ = blk.Close()
			return fmt.Errorf("lv: could not release truncated elements: %w", err)
		}
	}

	copy(blk.Bytes(), h.blk.Bytes())
	_ = h.blk.Close()
	h.blk = blk
	h.setDims(dims)

	return nil
}

// Release deallocates h and every handle it owns.
// Releasing an already released handle fails with ErrReleased.
func (a *Arena) Release(h *Handle) error {
	if h == nil {
		return ErrNilHandle
	}
	if h.arena != a {
		return fmt.Errorf("lv: handle %d does not belong to this arena", h.id)
	}

	a.mu.Lock()
	_, ok := a.live[h.id]
	if ok {
		delete(a.live, h.id)
	}
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: handle %d", ErrReleased, h.id)
	}

	var errs []error
	if err := h.releaseElems(0, h.Len()); err != nil {
		errs = append(errs, err)
	}
	if err := h.blk.Close(); err != nil {
		errs = append(errs, fmt.Errorf("lv: could not unmap handle %d: %w", h.id, err))
	}
	h.blk = nil

	return errors.Join(errs...)
}

func (a *Arena) check(h *Handle) error {
	switch {
	case h == nil:
		return ErrNilHandle
	case h.arena != a:
		return fmt.Errorf("lv: handle %d does not belong to this arena", h.id)
	case h.blk == nil:
		return fmt.Errorf("%w: handle %d", ErrReleased, h.id)
	}
	return nil
}

// count returns the number of elements of an array with the provided
// dimensions. The total is bounded by math.MaxInt32.
func count(dims []int) (int, error) {
	n := 1
	for _, d := range dims {
		if d < 0 || d > math.MaxInt32 {
			return 0, fmt.Errorf("%w: invalid dimension %d", ErrAllocation, d)
		}
		if d > 0 && n > math.MaxInt32/d {
			return 0, fmt.Errorf("%w: dimensions %v exceed %d elements", ErrAllocation, dims, math.MaxInt32)
		}
		n *= d
	}
	return n, nil
}

// blockSize returns the size in bytes of the block holding n elements of h.
func blockSize(h *Handle, n int) (int, error) {
	off, sz := h.offset(), h.elemSize()
	if sz > 0 && n > (math.MaxInt-off)/sz {
		return 0, fmt.Errorf("%w: %d elements of %d bytes overflow", ErrAllocation, n, sz)
	}
	return off + n*sz, nil
}
