// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-lpc/ionitof/icapi"
	"github.com/go-lpc/ionitof/lv"
)

// Clock tracks the cycles observed by a caller.
type Clock struct {
	last icapi.TimingInfo
	n    int64
}

// Observe records the cycle ti.
// Observe reports whether ti starts a new data file, and fails when the
// overall cycle went backwards.
func (clk *Clock) Observe(ti icapi.TimingInfo) (newFile bool, err error) {
	if clk.n > 0 {
		if ti.CycleOverall < clk.last.CycleOverall {
			return false, fmt.Errorf(
				"%w: overall cycle went backwards (%d -> %d)",
				ErrProtocol, clk.last.CycleOverall, ti.CycleOverall,
			)
		}
		newFile = ti.Cycle < clk.last.Cycle
	}
	clk.last = ti
	clk.n++
	return newFile, nil
}

// Last returns the last observed cycle, and whether any was observed.
func (clk *Clock) Last() (icapi.TimingInfo, bool) {
	return clk.last, clk.n > 0
}

// Cycles returns the number of observed cycles.
func (clk *Clock) Cycles() int64 { return clk.n }

// FullCycle returns the first full cycle whose overall index is at least
// since, waiting for it at most timeout.
func (c *Client) FullCycle(addr string, since uint32, timeout time.Duration) (FullCycle, error) {
	return c.fullCycle(addr, since, timeout, nil)
}

// FullCycleFlat is like FullCycle but also returns the full-cycle record
// in its flattened binary form.
func (c *Client) FullCycleFlat(addr string, since uint32, timeout time.Duration) (FullCycle, []byte, error) {
	buf := new(bytes.Buffer)
	fc, err := c.fullCycle(addr, since, timeout, buf)
	return fc, buf.Bytes(), err
}

func (c *Client) fullCycle(addr string, since uint32, timeout time.Duration, w io.Writer) (FullCycle, error) {
	var (
		fc  FullCycle
		ovr = since
		st  icapi.Status
	)
	err := c.mem.With(func(s *lv.Scope) error {
		box, err := s.AllocateRecords(icapi.FullCycleLayout, 1)
		if err != nil {
			return fmt.Errorf("bridge: could not allocate full-cycle record: %w", err)
		}
		rec := box.Record(0)
		st = c.lib.GetFullCycleData(addr, c.ms(timeout), &ovr, rec)
		if st == icapi.Error {
			return check("GetFullCycleData", addr, st)
		}
		if w != nil {
			err = lv.NewEncoder(w).Encode(rec)
			if err != nil {
				return err
			}
		}
		fc, err = fullCycleOf(icapi.FullCycleDocOf(rec))
		return err
	})
	if err != nil {
		return FullCycle{}, err
	}
	return fc, check("GetFullCycleData", addr, st)
}

// DecodeFullCycle reads a full cycle from its flattened binary form.
func (c *Client) DecodeFullCycle(r io.Reader) (FullCycle, error) {
	return DecodeFullCycle(c.mem, r)
}

// DecodeFullCycle reads a full cycle from its flattened binary form,
// using mem to hold the intermediate record.
func DecodeFullCycle(mem *lv.Arena, r io.Reader) (FullCycle, error) {
	var fc FullCycle
	err := mem.With(func(s *lv.Scope) error {
		box, err := s.AllocateRecords(icapi.FullCycleLayout, 1)
		if err != nil {
			return fmt.Errorf("bridge: could not allocate full-cycle record: %w", err)
		}
		rec := box.Record(0)
		err = lv.NewDecoder(r).Decode(rec)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		fc, err = fullCycleOf(icapi.FullCycleDocOf(rec))
		return err
	})
	if err != nil {
		return FullCycle{}, err
	}
	return fc, nil
}

// Cursor delivers the successive full cycles of an instrument.
type Cursor struct {
	c    *Client
	addr string
	json bool
	clk  Clock
}

// Cursor returns a new cursor over the full cycles of the instrument
// at addr, starting with its current cycle.
func (c *Client) Cursor(addr string) *Cursor {
	return &Cursor{c: c, addr: addr}
}

// Clock returns the clock of the cursor.
func (cur *Cursor) Clock() *Clock { return &cur.clk }

// Next waits for a full cycle more recent than the last one delivered.
// On timeout, Next returns the last known cycle with an error wrapping
// ErrTimeout.
func (cur *Cursor) Next(timeout time.Duration) (FullCycle, error) {
	since := uint32(0)
	if last, ok := cur.clk.Last(); ok {
		since = uint32(last.CycleOverall) + 1
	}

	get := cur.c.FullCycle
	if cur.json {
		get = cur.c.FullCycleJSON
	}
	fc, err := get(cur.addr, since, timeout)
	if err != nil {
		return fc, err
	}

	fc.NewFile, err = cur.clk.Observe(fc.Timing)
	if err != nil {
		return fc, err
	}
	return fc, nil
}

// Poll calls next until ctx is done, passing every fresh value to f.
// Timeouts of next are not errors: they only bound the latency of
// the cancellation.
func Poll[T any](ctx context.Context, next func() (T, error), f func(T) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		v, err := next()
		switch {
		case errors.Is(err, ErrTimeout):
			continue
		case err != nil:
			return err
		}
		err = f(v)
		if err != nil {
			return err
		}
	}
}

// ConcInfo returns the concentration-calculation settings of the instrument.
func (c *Client) ConcInfo(addr string) (ConcInfo, error) {
	var ci ConcInfo
	err := c.mem.With(func(s *lv.Scope) error {
		box, err := s.AllocateRecords(icapi.ConcInfoLayout, 1)
		if err != nil {
			return fmt.Errorf("bridge: could not allocate conc-info record: %w", err)
		}
		rec := box.Record(0)
		// the timeout of this call is ignored by the library.
		err = check("GetConcInfo", addr, c.lib.GetConcInfo(addr, c.ms(0), rec))
		if err != nil {
			return err
		}
		ci, err = concInfoOf(icapi.ConcInfoDocOf(rec))
		return err
	})
	return ci, err
}

// PrimaryIon returns the primary-ion setting in use.
func (c *Client) PrimaryIon(addr string) (PrimaryIon, error) {
	ci, err := c.ConcInfo(addr)
	if err != nil {
		return PrimaryIon{}, err
	}
	if ci.CurrentPI < 0 || ci.CurrentPI >= len(ci.PrimaryIons) {
		return PrimaryIon{}, fmt.Errorf(
			"%w: current primary ion %d out of range [0, %d)",
			ErrProtocol, ci.CurrentPI, len(ci.PrimaryIons),
		)
	}
	return ci.PrimaryIons[ci.CurrentPI], nil
}

// Transmission returns the transmission curve in use.
func (c *Client) Transmission(addr string) (Transmission, error) {
	ci, err := c.ConcInfo(addr)
	if err != nil {
		return Transmission{}, err
	}
	if ci.CurrentTrans < 0 || ci.CurrentTrans >= len(ci.Transmissions) {
		return Transmission{}, fmt.Errorf(
			"%w: current transmission %d out of range [0, %d)",
			ErrProtocol, ci.CurrentTrans, len(ci.Transmissions),
		)
	}
	return ci.Transmissions[ci.CurrentTrans], nil
}
