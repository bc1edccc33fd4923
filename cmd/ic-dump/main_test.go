// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/ionitof/bridge"
	"github.com/go-lpc/ionitof/cycledb"
	"github.com/go-lpc/ionitof/internal/sim"
	"github.com/go-lpc/ionitof/internal/xcnv"
	"go-hep.org/x/hep/lcio"
)

func TestDump(t *testing.T) {
	const inst = "192.168.0.10"

	lib := sim.New()
	dev := sim.NewInstrument()
	dev.Timebins = 16
	dev.Masses = []float32{21.022, 33.034, 59.049}
	lib.Add(inst, dev)
	cli := bridge.New(lib, bridge.WithLogger(log.New(io.Discard, "", 0)))

	fname := filepath.Join(t.TempDir(), "cycles.slcio")
	w, err := lcio.Create(fname)
	if err != nil {
		t.Fatalf("could not create LCIO file: %+v", err)
	}
	defer w.Close()

	cw := xcnv.NewWriter(w, log.New(io.Discard, "", 0))
	for _, n := range []int{1, 2} {
		err := lib.Push(inst, sim.Synth(n, 0, 16, 3, time.Unix(1600000000, 0).Add(time.Duration(n)*time.Second), time.Duration(n)*time.Second))
		if err != nil {
			t.Fatalf("could not push cycle %d: %+v", n, err)
		}
		fc, flat, err := cli.FullCycleFlat(inst, uint32(n), time.Second)
		if err != nil {
			t.Fatalf("could not get cycle %d: %+v", n, err)
		}
		err = cw.Write(cycledb.Cycle{
			Addr:    inst,
			Overall: fc.Timing.CycleOverall,
			Cycle:   fc.Timing.Cycle,
			Time:    fc.Timing.Time(),
			Run:     fc.Run,
			Flat:    flat,
			AddData: []bridge.AddDataChannel{{Description: "T_inlet", Group: "PTR", Unit: "C", Value: 60}},
		})
		if err != nil {
			t.Fatalf("could not write cycle %d: %+v", n, err)
		}
	}

	err = w.Close()
	if err != nil {
		t.Fatalf("could not close LCIO file: %+v", err)
	}

	out := new(strings.Builder)
	xmain(out, []string{"-adddata", fname})

	for _, want := range []string{
		"=== cycle 1 (run 0, cycle 1) ===",
		"=== cycle 2 (run 0, cycle 2) ===",
		"Instrument:   192.168.0.10",
		"Time bins:    16",
		"Masses:       3",
		"m/z=  33.034",
		"PTR/T_inlet = 60 C",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in output:\n%s", want, out.String())
		}
	}
}
