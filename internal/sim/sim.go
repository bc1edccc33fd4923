// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sim provides an in-memory instrument library, serving
// simulated IoniTOF servers through the icapi.Lib call surface.
package sim // import "github.com/go-lpc/ionitof/internal/sim"

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"time"

	"github.com/go-lpc/ionitof/icapi"
	"github.com/go-lpc/ionitof/lv"
)

// Cycle is the data of one acquisition cycle.
type Cycle struct {
	Timing     icapi.TimeCycle
	Spectrum   []float32
	SumInty    []float32
	Raw        []float32
	Corr       []float32
	Conc       []float32
	CalPara    []float64
	Automation icapi.Automation
	GPS        icapi.GPSDoc
	AddData    []icapi.AddDataDoc
}

// Param is an instrument parameter.
type Param struct {
	Name    string
	AltName string
	Index   int32
	Value   float32
	Unit    string
}

// Instrument is the state of a simulated instrument server.
type Instrument struct {
	Measure  icapi.MeasureState
	State    icapi.ServerState
	Action   icapi.ServerAction
	Timebins int32
	File     string
	AutoFile string
	Masses   []float32
	Params   []Param
	Errors   map[int32]string
	ConcInfo icapi.ConcInfoDoc

	cur     Cycle
	seq     uint64            // number of published cycles
	cursors map[string]uint64 // last cycle seen by each call family
	notify  chan struct{}     // closed when a new cycle is published
	sched   [][2]string       // parameters applied on the next cycle
	fail    int               // number of calls to fail
}

// NewInstrument returns an idle instrument with a default parameter
// and mass table.
func NewInstrument() *Instrument {
	return &Instrument{
		Measure:  icapi.ReadyIdle,
		State:    icapi.StateOK,
		Timebins: 1024,
		File:     `D:\Data\default.h5`,
		Masses:   []float32{21.022, 29.013, 30.994, 33.034, 37.028, 47.049, 59.049, 69.070},
		Params: []Param{
			{Name: "DPS_Udrift", AltName: "Udrift", Index: 0, Value: 600, Unit: "V"},
			{Name: "DPS_Us", AltName: "Us", Index: 1, Value: 80, Unit: "V"},
			{Name: "DPS_Uso", AltName: "Uso", Index: 2, Value: 120, Unit: "V"},
			{Name: "p_Drift", AltName: "pdrift", Index: 3, Value: 2.4, Unit: "mbar"},
			{Name: "T_Drift", AltName: "Tdrift", Index: 4, Value: 80, Unit: "\u00b0C"},
			{Name: "PrimionIdx", AltName: "PrimionIdx", Index: 5, Value: 0, Unit: ""},
			{Name: "TransmissionIdx", AltName: "TransmissionIdx", Index: 6, Value: 0, Unit: ""},
		},
		Errors:  make(map[int32]string),
		cursors: make(map[string]uint64),
		notify:  make(chan struct{}),
	}
}

func (inst *Instrument) param(name string) *Param {
	for i := range inst.Params {
		p := &inst.Params[i]
		if p.Name == name || p.AltName == name {
			return p
		}
	}
	return nil
}

// Server is an in-memory instrument library.
// Server is safe for concurrent use.
type Server struct {
	mem *lv.Arena
	msg *log.Logger

	version float64

	mu    sync.Mutex
	insts map[string]*Instrument
	srcs  map[string]*source
	order []string // add-data sources, in creation order
	nodll bool     // add-data library unavailable
}

// Option configures a Server.
type Option func(srv *Server)

// WithLogger sets the logger of the server.
func WithLogger(msg *log.Logger) Option {
	return func(srv *Server) {
		srv.msg = msg
	}
}

// WithArena sets the arena used to exchange handles.
func WithArena(mem *lv.Arena) Option {
	return func(srv *Server) {
		srv.mem = mem
	}
}

// WithoutAddData simulates a missing add-data library.
func WithoutAddData() Option {
	return func(srv *Server) {
		srv.nodll = true
	}
}

// New returns a new in-memory library.
func New(opts ...Option) *Server {
	srv := &Server{
		mem:     lv.NewArena(),
		msg:     log.New(io.Discard, "sim: ", 0),
		version: 1.0503,
		insts:   make(map[string]*Instrument),
		srcs:    make(map[string]*source),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Arena returns the arena holding the handles exchanged with the server.
func (srv *Server) Arena() *lv.Arena { return srv.mem }

// Add registers the instrument inst at the provided address.
func (srv *Server) Add(addr string, inst *Instrument) *Instrument {
	if inst == nil {
		inst = NewInstrument()
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.insts[addr] = inst
	return inst
}

// Update runs f with the instrument at addr, under the server lock.
func (srv *Server) Update(addr string, f func(inst *Instrument)) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	inst, ok := srv.insts[addr]
	if !ok {
		return fmt.Errorf("sim: no instrument at %q", addr)
	}
	f(inst)
	return nil
}

// FailNext makes the next n calls against addr fail.
func (srv *Server) FailNext(addr string, n int) error {
	return srv.Update(addr, func(inst *Instrument) { inst.fail = n })
}

// Push publishes a new cycle on the instrument at addr and wakes up
// all the calls waiting for it.
func (srv *Server) Push(addr string, c Cycle) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	inst, ok := srv.insts[addr]
	if !ok {
		return fmt.Errorf("sim: no instrument at %q", addr)
	}

	for _, kv := range inst.sched {
		if err := inst.set(kv[0], kv[1]); err != nil {
			srv.msg.Printf("could not apply scheduled parameter %q: %+v", kv[0], err)
		}
	}
	inst.sched = inst.sched[:0]

	c = clone(c)
	for _, name := range srv.order {
		c.AddData = append(c.AddData, srv.srcs[name].doc(name))
	}
	inst.cur = c
	inst.seq++
	close(inst.notify)
	inst.notify = make(chan struct{})
	return nil
}

// Run publishes a synthetic cycle on the instrument at addr every period,
// until ctx is done.
// The relative cycle restarts every fileLen cycles.
func (srv *Server) Run(ctx context.Context, addr string, period time.Duration, fileLen int) error {
	if fileLen <= 0 {
		fileLen = math.MaxInt32
	}
	var (
		tck   = time.NewTicker(period)
		beg   = time.Now()
		n     = 0
		err   error
		nbins int32
		npks  int
	)
	defer tck.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-tck.C:
			err = srv.Update(addr, func(inst *Instrument) {
				inst.Measure = icapi.MeasurementActive
				nbins = inst.Timebins
				npks = len(inst.Masses)
				if n > 0 && n%fileLen == 0 {
					inst.File = fmt.Sprintf(`D:\Data\run_%04d.h5`, n/fileLen)
				}
			})
			if err != nil {
				return err
			}
			c := Synth(n, fileLen, int(nbins), npks, now, now.Sub(beg))
			err = srv.Push(addr, c)
			if err != nil {
				return err
			}
			n++
		}
	}
}

// Synth generates the n-th synthetic cycle of a measurement.
func Synth(n, fileLen, nbins, npeaks int, now time.Time, rel time.Duration) Cycle {
	if fileLen <= 0 {
		fileLen = math.MaxInt32
	}
	c := Cycle{
		Timing: icapi.TimeCycle{
			Cycle:          float64(n % fileLen),
			OverallCycle:   float64(n),
			AbsTime:        icapi.AbsTime(now),
			RelTime:        rel.Seconds(),
			Run:            float64(n / fileLen),
			CntsPerExtract: 1e4,
		},
		Spectrum: make([]float32, nbins),
		SumInty:  make([]float32, nbins),
		Raw:      make([]float32, npeaks),
		Corr:     make([]float32, npeaks),
		Conc:     make([]float32, npeaks),
		CalPara:  []float64{9813.5, 2.53},
		GPS:      icapi.GPSDoc{State: icapi.GPSNotAvailable},
	}
	for i := range c.Spectrum {
		x := float64(i%64) - 32
		c.Spectrum[i] = float32(100 * math.Exp(-x*x/8))
		c.SumInty[i] = c.Spectrum[i] * float32(n+1)
	}
	for i := range c.Raw {
		v := float32(1000*(i+1)) + float32(n%7)
		c.Raw[i] = v
		c.Corr[i] = 0.9 * v
		c.Conc[i] = v / 1e3
	}
	return c
}

func clone(c Cycle) Cycle {
	o := c
	o.Spectrum = append([]float32{}, c.Spectrum...)
	o.SumInty = append([]float32{}, c.SumInty...)
	o.Raw = append([]float32{}, c.Raw...)
	o.Corr = append([]float32{}, c.Corr...)
	o.Conc = append([]float32{}, c.Conc...)
	o.CalPara = append([]float64{}, c.CalPara...)
	o.AddData = append([]icapi.AddDataDoc{}, c.AddData...)
	return o
}

// instrument returns the instrument at addr, consuming injected failures.
// instrument must be called with srv.mu held.
func (srv *Server) instrument(addr string) (*Instrument, bool) {
	inst, ok := srv.insts[addr]
	if !ok {
		srv.msg.Printf("no instrument at %q", addr)
		return nil, false
	}
	if inst.fail > 0 {
		inst.fail--
		srv.msg.Printf("injected failure on %q", addr)
		return nil, false
	}
	return inst, true
}

// current returns a snapshot of the current cycle of the instrument at addr.
func (srv *Server) current(addr string) (Cycle, *Instrument, icapi.Status) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	inst, ok := srv.instrument(addr)
	if !ok {
		return Cycle{}, nil, icapi.Error
	}
	return inst.cur, inst, icapi.Ok
}

// next waits for a cycle not yet seen by the call family fam, for at most
// timeout milliseconds.
// On timeout, next returns the last known cycle.
func (srv *Server) next(addr, fam string, timeout int32) (Cycle, icapi.Status) {
	return srv.wait(addr, timeout, func(inst *Instrument) bool {
		if inst.seq <= inst.cursors[fam] {
			return false
		}
		inst.cursors[fam] = inst.seq
		return true
	})
}

// wait waits until fresh reports the current cycle of the instrument
// at addr as new, for at most timeout milliseconds.
// fresh is called with srv.mu held.
func (srv *Server) wait(addr string, timeout int32, fresh func(inst *Instrument) bool) (Cycle, icapi.Status) {
	if timeout < 0 {
		timeout = 0
	}
	deadline := time.Now().Add(time.Duration(timeout) * time.Millisecond)

	srv.mu.Lock()
	inst, ok := srv.instrument(addr)
	if !ok {
		srv.mu.Unlock()
		return Cycle{}, icapi.Error
	}
	for {
		if fresh(inst) {
			c := inst.cur
			srv.mu.Unlock()
			return c, icapi.Ok
		}
		notify := inst.notify
		srv.mu.Unlock()

		wait := time.Until(deadline)
		if wait <= 0 {
			srv.mu.Lock()
			c := inst.cur
			srv.mu.Unlock()
			return c, icapi.Timeout
		}

		tmr := time.NewTimer(wait)
		select {
		case <-notify:
			tmr.Stop()
		case <-tmr.C:
		}
		srv.mu.Lock()
	}
}
