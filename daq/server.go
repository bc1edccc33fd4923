// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package daq exposes an instrument as a TDAQ node, streaming its full
// cycles and spectra to the rest of the data acquisition chain.
package daq // import "github.com/go-lpc/ionitof/daq"

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/ionitof/bridge"
	"github.com/vmihailenco/msgpack/v5"
)

type msgStream interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Server is a TDAQ node reading out one instrument.
type Server struct {
	cli     *bridge.Client
	addr    string
	timeout time.Duration

	cycles  chan []byte // flattened full cycles
	spectra chan []byte // msgpack-encoded spectra

	mu    sync.Mutex
	since uint32
	clk   bridge.Clock
	drops atomic.Int64
}

// NewServer returns a TDAQ node reading out the instrument at addr.
func NewServer(cli *bridge.Client, addr string, timeout time.Duration) *Server {
	srv := &Server{
		cli:     cli,
		addr:    addr,
		timeout: timeout,
		cycles:  make(chan []byte, 1024),
		spectra: make(chan []byte, 1024),
	}
	srv.reset()
	return srv
}

// reset clears the read-out state.
// The output channels are shared with the output handlers: they are
// drained, never replaced.
func (srv *Server) reset() {
	drain(srv.cycles)
	drain(srv.spectra)

	srv.mu.Lock()
	srv.since = 1 // skip the empty start-up cycle
	srv.clk = bridge.Clock{}
	srv.mu.Unlock()
	srv.drops.Store(0)
}

func drain(ch chan []byte) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// Spectrum is the payload of the "/spectrum" output.
type Spectrum struct {
	Addr    string    `msgpack:"addr"`
	Overall int32     `msgpack:"overall"`
	Cycle   int32     `msgpack:"cycle"`
	AbsTime float64   `msgpack:"abs_time"`
	RelTime float64   `msgpack:"rel_time"`
	CalPara []float64 `msgpack:"calpara"`
	Data    []float32 `msgpack:"data"`
	NewFile bool      `msgpack:"new_file"`
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	return srv.configure(ctx.Msg, req.Body)
}

func (srv *Server) configure(msg msgStream, body []byte) error {
	if len(body) > 0 {
		dec := tdaq.NewDecoder(bytes.NewReader(body))
		addr := dec.ReadStr()
		if addr != "" {
			srv.addr = addr
		}
	}

	st, err := srv.cli.ServerState(srv.addr)
	if err != nil {
		msg.Errorf("could not reach instrument %q: %+v", srv.addr, err)
		return fmt.Errorf("could not reach instrument %q: %w", srv.addr, err)
	}
	msg.Infof("instrument %q: server state %v", srv.addr, st)
	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	srv.reset()
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	srv.reset()
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	var file string
	if len(req.Body) > 0 {
		file = tdaq.NewDecoder(bytes.NewReader(req.Body)).ReadStr()
	}
	return srv.start(ctx.Ctx, ctx.Msg, file)
}

func (srv *Server) start(ctx context.Context, msg msgStream, file string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := srv.cli.StartMeasurement(ctx, srv.addr, file)
	if err != nil {
		msg.Errorf("could not start measurement on %q: %+v", srv.addr, err)
		return fmt.Errorf("could not start measurement on %q: %w", srv.addr, err)
	}
	msg.Infof("measurement started on %q (file=%q)", srv.addr, file)
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	return srv.stop(ctx.Ctx, ctx.Msg)
}

func (srv *Server) stop(ctx context.Context, msg msgStream) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := srv.cli.StopMeasurement(ctx, srv.addr)
	if err != nil {
		msg.Errorf("could not stop measurement on %q: %+v", srv.addr, err)
		return fmt.Errorf("could not stop measurement on %q: %w", srv.addr, err)
	}
	if n := srv.drops.Load(); n > 0 {
		msg.Warnf("dropped %d cycles of %q", n, srv.addr)
	}
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return nil
}

// FullCycles is the "/fullcycle" output handler.
func (srv *Server) FullCycles(ctx tdaq.Context, dst *tdaq.Frame) error {
	return output(ctx.Ctx, dst, srv.cycles)
}

// Spectra is the "/spectrum" output handler.
func (srv *Server) Spectra(ctx tdaq.Context, dst *tdaq.Frame) error {
	return output(ctx.Ctx, dst, srv.spectra)
}

func output(ctx context.Context, dst *tdaq.Frame, ch chan []byte) error {
	select {
	case <-ctx.Done():
		dst.Body = nil
	case data := <-ch:
		dst.Body = data
	}
	return nil
}

// Run is the run handler of the node.
func (srv *Server) Run(ctx tdaq.Context) error {
	return srv.run(ctx.Ctx, ctx.Msg)
}

func (srv *Server) run(ctx context.Context, msg msgStream) error {
	type flat struct {
		fc  bridge.FullCycle
		raw []byte
	}

	next := func() (flat, error) {
		srv.mu.Lock()
		since := srv.since
		srv.mu.Unlock()
		fc, raw, err := srv.cli.FullCycleFlat(srv.addr, since, srv.timeout)
		return flat{fc, raw}, err
	}

	err := bridge.Poll(ctx, next, func(v flat) error {
		srv.mu.Lock()
		newFile, err := srv.clk.Observe(v.fc.Timing)
		if err == nil {
			srv.since = uint32(v.fc.Timing.CycleOverall) + 1
		}
		srv.mu.Unlock()
		if err != nil {
			return err
		}
		if newFile {
			msg.Infof("new data file on %q at cycle %d", srv.addr, v.fc.Timing.CycleOverall)
		}

		spec, err := msgpack.Marshal(Spectrum{
			Addr:    srv.addr,
			Overall: v.fc.Timing.CycleOverall,
			Cycle:   v.fc.Timing.Cycle,
			AbsTime: v.fc.Timing.AbsTime,
			RelTime: v.fc.Timing.RelTime,
			CalPara: v.fc.CalPara,
			Data:    v.fc.Spectrum,
			NewFile: newFile,
		})
		if err != nil {
			return fmt.Errorf("could not encode spectrum of cycle %d: %w", v.fc.Timing.CycleOverall, err)
		}

		srv.send(srv.cycles, v.raw)
		srv.send(srv.spectra, spec)
		return nil
	})

	switch {
	case err == nil, ctx.Err() != nil:
		return nil
	default:
		msg.Errorf("could not read out %q: %+v", srv.addr, err)
		return err
	}
}

func (srv *Server) send(ch chan []byte, data []byte) {
	select {
	case ch <- data:
	default:
		srv.drops.Add(1)
	}
}

// Cycles returns the number of cycles read out since the last reset.
func (srv *Server) Cycles() int64 {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.clk.Cycles()
}

// Drops returns the number of payloads dropped since the last reset.
func (srv *Server) Drops() int64 { return srv.drops.Load() }
