// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// ic-dump decodes and displays full cycles embedded in LCIO files.
//
// Usage: ic-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> ic-dump ./ptr-1.slcio
//	=== cycle 42 (run 0, cycle 42) ===
//	Instrument:   192.168.0.10
//	Time:         2020-09-13 12:26:40.000 +0000 UTC
//	Rel time:     42.000 s
//	Time bins:    1024
//	Sum counts:   1.235e+04
//	Masses:       8
//	  m/z=  21.022 raw=  1000.000 corr=   900.000 conc=  1.000
//	[...]
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/ionitof/bridge"
	"github.com/go-lpc/ionitof/cycledb"
	"github.com/go-lpc/ionitof/internal/xcnv"
	"github.com/go-lpc/ionitof/lv"
	"go-hep.org/x/hep/lcio"
)

const usage = `ic-dump decodes and displays full cycles embedded in LCIO files.

Usage: ic-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> ic-dump ./ptr-1.slcio
 === cycle 42 (run 0, cycle 42) ===
 Instrument:   192.168.0.10
 Time:         2020-09-13 12:26:40.000 +0000 UTC
 [...]

`

func main() {
	xmain(os.Stdout, os.Args[1:])
}

func xmain(w io.Writer, args []string) {
	log.SetPrefix("ic-dump: ")
	log.SetFlags(0)

	var (
		fset = flag.NewFlagSet("ic-dump", flag.ExitOnError)

		adddata = fset.Bool("adddata", false, "display add-data channels")
	)

	fset.Usage = func() {
		fmt.Print(usage)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	if fset.NArg() == 0 {
		fset.Usage()
		log.Fatalf("missing path to input LCIO file")
	}

	for _, fname := range fset.Args() {
		err := process(w, fname, *adddata)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, adddata bool) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	r, err := lcio.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open LCIO file: %w", err)
	}
	defer r.Close()

	mem := lv.NewArena()
	err = xcnv.ReadCycles(r, func(c cycledb.Cycle) error {
		fc, err := bridge.DecodeFullCycle(mem, bytes.NewReader(c.Flat))
		if err != nil {
			return fmt.Errorf("could not decode cycle %d: %w", c.Overall, err)
		}
		dump(wbuf, c, fc, adddata)
		return nil
	})
	if err != nil {
		return err
	}

	return wbuf.Flush()
}

func dump(w io.Writer, c cycledb.Cycle, fc bridge.FullCycle, adddata bool) {
	var sum float64
	for _, v := range fc.Spectrum {
		sum += float64(v)
	}

	fmt.Fprintf(w, "=== cycle %d (run %d, cycle %d) ===\n", c.Overall, c.Run, c.Cycle)
	fmt.Fprintf(w, "Instrument:   %s\n", c.Addr)
	fmt.Fprintf(w, "Time:         %s\n", fc.Timing.Time().Format("2006-01-02 15:04:05.000 -0700 MST"))
	fmt.Fprintf(w, "Rel time:     %.3f s\n", fc.Timing.RelTime)
	fmt.Fprintf(w, "Time bins:    %d\n", len(fc.Spectrum))
	fmt.Fprintf(w, "Sum counts:   %.3e\n", sum)
	fmt.Fprintf(w, "Masses:       %d\n", len(fc.Masses))
	for i, m := range fc.Masses {
		fmt.Fprintf(w, "  m/z=% 8.3f raw=% 10.3f corr=% 10.3f conc=% 7.3f\n",
			m, at(fc.Traces.Raw, i), at(fc.Traces.Corr, i), at(fc.Traces.Conc, i),
		)
	}
	if !adddata {
		return
	}
	fmt.Fprintf(w, "Add-data:     %d\n", len(c.AddData))
	for _, ch := range c.AddData {
		fmt.Fprintf(w, "  %s/%s = %v %s\n", ch.Group, ch.Description, ch.Value, ch.Unit)
	}
}

func at(vs []float32, i int) float32 {
	if i < len(vs) {
		return vs[i]
	}
	return 0
}
