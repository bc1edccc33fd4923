// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ic-daq starts a TDAQ node reading out an instrument.
//
// The node publishes the flattened full cycles of the instrument on its
// "/fullcycle" output and msgpack-encoded spectra on its "/spectrum" output.
package main // import "github.com/go-lpc/ionitof/cmd/ic-daq"

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/ionitof/bridge"
	"github.com/go-lpc/ionitof/daq"
	"github.com/go-lpc/ionitof/internal/sim"
)

func main() {
	cmd := flags.New()

	inst := "localhost"
	if len(cmd.Args) > 0 {
		inst = cmd.Args[0]
	}

	lib := sim.New(sim.WithLogger(log.New(io.Discard, "", 0)))
	lib.Add(inst, sim.NewInstrument())
	go func() {
		err := lib.Run(context.Background(), inst, 1*time.Second, 0)
		if err != nil {
			log.Panicf("could not run instrument %q: %+v", inst, err)
		}
	}()

	cli := bridge.New(lib, bridge.WithLogger(log.New(os.Stdout, "ic-daq: ", 0)))
	dev := daq.NewServer(cli, inst, 500*time.Millisecond)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/fullcycle", dev.FullCycles)
	srv.OutputHandle("/spectrum", dev.Spectra)

	srv.RunHandle(dev.Run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
