// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cycledb

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-lpc/ionitof/bridge"
)

// Recorder stores the successive full cycles of an instrument.
type Recorder struct {
	db   *DB
	cli  *bridge.Client
	addr string
	msg  *log.Logger

	timeout time.Duration
	clk     bridge.Clock
	bytes   uint64
}

// NewRecorder returns a recorder storing the full cycles of the instrument
// at addr into db.
func NewRecorder(db *DB, cli *bridge.Client, addr string, timeout time.Duration) *Recorder {
	return &Recorder{
		db:      db,
		cli:     cli,
		addr:    addr,
		msg:     log.New(os.Stdout, "cycledb: ", 0),
		timeout: timeout,
	}
}

// SetLogger sets the logger of the recorder.
func (rec *Recorder) SetLogger(msg *log.Logger) { rec.msg = msg }

// Run stores full cycles until ctx is done.
// Run resumes after the last cycle already stored for the instrument.
func (rec *Recorder) Run(ctx context.Context) error {
	since := uint32(1) // skip the empty start-up cycle
	last, ok, err := rec.db.LastOverall(ctx, rec.addr)
	if err != nil {
		return err
	}
	if ok {
		since = uint32(last) + 1
		rec.msg.Printf("resuming %q after cycle %d", rec.addr, last)
	}

	type flat struct {
		fc  bridge.FullCycle
		raw []byte
	}

	next := func() (flat, error) {
		fc, raw, err := rec.cli.FullCycleFlat(rec.addr, since, rec.timeout)
		return flat{fc, raw}, err
	}

	return bridge.Poll(ctx, next, func(v flat) error {
		newFile, err := rec.clk.Observe(v.fc.Timing)
		if err != nil {
			return err
		}
		if newFile {
			rec.msg.Printf("new data file for %q at cycle %d", rec.addr, v.fc.Timing.CycleOverall)
		}
		err = rec.db.Insert(ctx, Cycle{
			Addr:    rec.addr,
			Overall: v.fc.Timing.CycleOverall,
			Cycle:   v.fc.Timing.Cycle,
			Time:    v.fc.Timing.Time(),
			Run:     v.fc.Run,
			Flat:    v.raw,
			AddData: v.fc.AddData,
		})
		if err != nil {
			return fmt.Errorf("cycledb: could not record %q: %w", rec.addr, err)
		}
		since = uint32(v.fc.Timing.CycleOverall) + 1
		rec.bytes += uint64(len(v.raw))
		if rec.clk.Cycles()%100 == 0 {
			rec.msg.Printf("recorded %d cycles of %q (%s)",
				rec.clk.Cycles(), rec.addr, humanize.Bytes(rec.bytes),
			)
		}
		return nil
	})
}

// Cycles returns the number of cycles recorded so far.
func (rec *Recorder) Cycles() int64 { return rec.clk.Cycles() }

// Bytes returns the size of the flattened cycles recorded so far.
func (rec *Recorder) Bytes() uint64 { return rec.bytes }
