// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lv

import (
	"errors"
	"fmt"
)

// Scope tracks handles that must be released together.
// Handles are released in reverse acquisition order.
type Scope struct {
	arena *Arena
	slots []**Handle
}

// NewScope returns a new empty scope.
func (a *Arena) NewScope() *Scope {
	return &Scope{arena: a}
}

// With runs f with a new scope and releases all the handles it tracks
// once f returns, whatever its outcome.
func (a *Arena) With(f func(s *Scope) error) (err error) {
	s := a.NewScope()
	defer func() {
		if e := s.Release(); e != nil {
			err = errors.Join(err, e)
		}
	}()
	return f(s)
}

// Slot returns a new null handle slot owned by the scope.
// Slots are used for handles allocated by the callee.
func (s *Scope) Slot() **Handle {
	slot := new(*Handle)
	s.slots = append(s.slots, slot)
	return slot
}

// Adopt transfers the ownership of h to the scope.
func (s *Scope) Adopt(h *Handle) *Handle {
	if h == nil {
		return nil
	}
	slot := s.Slot()
	*slot = h
	return h
}

func (s *Scope) adopt(h *Handle, err error) (*Handle, error) {
	if err != nil {
		return nil, err
	}
	return s.Adopt(h), nil
}

func (s *Scope) Allocate(k Kind, n int) (*Handle, error) {
	return s.adopt(s.arena.Allocate(k, n))
}

func (s *Scope) Allocate2D(k Kind, rows, cols int) (*Handle, error) {
	return s.adopt(s.arena.Allocate2D(k, rows, cols))
}

func (s *Scope) AllocateRecords(lay *Layout, n int) (*Handle, error) {
	return s.adopt(s.arena.AllocateRecords(lay, n))
}

// Strings allocates a string-reference handle holding vs.
func (s *Scope) Strings(vs []string) (*Handle, error) {
	h, err := s.Allocate(StringRef, 0)
	if err != nil {
		return nil, err
	}
	return h, h.SetStrings(vs)
}

// Float32s allocates a float32 handle holding vs.
func (s *Scope) Float32s(vs []float32) (*Handle, error) {
	h, err := s.Allocate(Float32, 0)
	if err != nil {
		return nil, err
	}
	return h, h.SetFloat32s(vs)
}

// Release releases all the handles tracked by the scope.
// Null slots are skipped.
func (s *Scope) Release() error {
	var errs []error
	for i := len(s.slots) - 1; i >= 0; i-- {
		h := *s.slots[i]
		if h == nil {
			continue
		}
		*s.slots[i] = nil
		if err := s.arena.Release(h); err != nil {
			errs = append(errs, fmt.Errorf("lv: could not release handle %d: %w", h.id, err))
		}
	}
	s.slots = s.slots[:0]
	return errors.Join(errs...)
}
