// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"errors"
	"fmt"

	"github.com/go-lpc/ionitof/icapi"
	"github.com/go-lpc/ionitof/lv"
)

var (
	// ErrProtocol is returned when the instrument library reports a failure.
	ErrProtocol = errors.New("bridge: instrument call failed")

	// ErrTimeout is returned when a blocking call did not see a new cycle
	// in time. The values returned alongside hold the last known data.
	ErrTimeout = errors.New("bridge: timeout")

	// ErrShapeMismatch is returned when parallel arrays disagree in length.
	ErrShapeMismatch = errors.New("bridge: shape mismatch")

	// ErrEncodingRange is returned when a text can not be encoded as Latin-1.
	ErrEncodingRange = lv.ErrEncodingRange

	// ErrAllocation is returned when a handle could not be allocated.
	ErrAllocation = lv.ErrAllocation
)

// CallError describes a failed instrument call.
type CallError struct {
	Op     string       // name of the library call
	Addr   string       // address of the instrument server
	Status icapi.Status // status returned by the library
}

func (e *CallError) Error() string {
	return fmt.Sprintf("bridge: %s(%q): %v", e.Op, e.Addr, e.Status)
}

func (e *CallError) Unwrap() error {
	if e.Status == icapi.Timeout {
		return ErrTimeout
	}
	return ErrProtocol
}

// StatusOf returns the library status corresponding to err.
func StatusOf(err error) icapi.Status {
	switch {
	case err == nil:
		return icapi.Ok
	case errors.Is(err, ErrTimeout):
		return icapi.Timeout
	default:
		return icapi.Error
	}
}

func check(op, addr string, st icapi.Status) error {
	if st == icapi.Ok {
		return nil
	}
	return &CallError{Op: op, Addr: addr, Status: st}
}

func checkShape(what string, lens ...int) error {
	for _, n := range lens[1:] {
		if n != lens[0] {
			return fmt.Errorf("%w: %s lengths %v", ErrShapeMismatch, what, lens)
		}
	}
	return nil
}
