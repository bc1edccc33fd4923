// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bridge exposes the typed host-side API of IoniTOF instrument
// servers, on top of the icapi call surface.
//
// Every operation takes the address of the instrument server as its first
// argument. Blocking operations take a timeout: a zero timeout selects the
// default timeout of the Client. When no new cycle arrived in time, they
// return the last known data together with an error wrapping ErrTimeout.
//
// Clients do not serialize calls. Callers sharing an instrument between
// goroutines must serialize the calls they issue against a given address.
package bridge // import "github.com/go-lpc/ionitof/bridge"

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-lpc/ionitof/icapi"
	"github.com/go-lpc/ionitof/lv"
)

const (
	// MaxParams is the capacity of the parameter tables read from
	// the instrument.
	MaxParams = 1024

	// MaxErrors is the capacity of the error-code tables read from
	// the instrument.
	MaxErrors = 256
)

// Client issues typed calls to instrument servers through a library.
type Client struct {
	lib icapi.Lib
	mem *lv.Arena
	msg *log.Logger

	timeout time.Duration
	jsonbuf int
}

// Option configures a Client.
type Option func(c *Client)

// WithLogger sets the logger of the client.
func WithLogger(msg *log.Logger) Option {
	return func(c *Client) {
		c.msg = msg
	}
}

// WithTimeout sets the default timeout of blocking calls.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithJSONBuffer sets the capacity of the buffers receiving JSON documents.
func WithJSONBuffer(n int) Option {
	return func(c *Client) {
		c.jsonbuf = n
	}
}

// New returns a new client using the provided instrument library.
func New(lib icapi.Lib, opts ...Option) *Client {
	c := &Client{
		lib:     lib,
		mem:     lib.Arena(),
		msg:     log.New(os.Stdout, "bridge: ", 0),
		timeout: icapi.DefaultTimeout * time.Millisecond,
		jsonbuf: 4 << 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Arena returns the arena holding the handles exchanged with the library.
func (c *Client) Arena() *lv.Arena { return c.mem }

func (c *Client) ms(timeout time.Duration) int32 {
	if timeout == 0 {
		timeout = c.timeout
	}
	return int32(timeout / time.Millisecond)
}

// Version returns the version of the instrument library.
func (c *Client) Version() (string, float64) {
	buf := make([]byte, 256)
	v := c.lib.GetVersion(buf)
	return lv.DecodeFixed(buf, len(buf)), v
}

// MeasureState returns the measurement state of the instrument.
// Unknown states are logged and passed through.
func (c *Client) MeasureState(addr string) (icapi.MeasureState, error) {
	var st icapi.MeasureState
	err := check("GetMeasureState", addr, c.lib.GetMeasureState(addr, &st))
	if err != nil {
		return st, err
	}
	if !st.Valid() {
		c.msg.Printf("unknown measure state %d from %q", st, addr)
	}
	return st, nil
}

// ServerState returns the state of the instrument server.
// Unknown states are logged and passed through.
func (c *Client) ServerState(addr string) (icapi.ServerState, error) {
	var st icapi.ServerState
	err := check("GetServerState", addr, c.lib.GetServerState(addr, &st))
	if err != nil {
		return st, err
	}
	if !st.Valid() {
		c.msg.Printf("unknown server state %d from %q", st, addr)
	}
	return st, nil
}

// ServerAction returns the server action the instrument is processing.
// Unknown actions are logged and passed through.
func (c *Client) ServerAction(addr string) (icapi.ServerAction, error) {
	var act icapi.ServerAction
	err := check("GetServerAction", addr, c.lib.GetServerAction(addr, &act))
	if err != nil {
		return act, err
	}
	if !act.Valid() {
		c.msg.Printf("unknown server action %d from %q", act, addr)
	}
	return act, nil
}

// Do dispatches the server action act.
func (c *Client) Do(addr string, act icapi.ServerAction) error {
	if !act.Valid() {
		return fmt.Errorf("bridge: invalid server action %d", act)
	}
	return check("SetServerAction", addr, c.lib.SetServerAction(addr, act))
}

// Timebins returns the number of time bins of the spectra.
func (c *Client) Timebins(addr string) (int, error) {
	var n int32
	err := check("GetNumberOfTimebins", addr, c.lib.GetNumberOfTimebins(addr, &n))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: invalid number of time bins %d", ErrProtocol, n)
	}
	return int(n), nil
}

// DataFile returns the name of the data file being written.
func (c *Client) DataFile(addr string) (string, error) {
	buf := make([]byte, icapi.MaxPath)
	err := check("GetCurrentDataFileName", addr, c.lib.GetCurrentDataFileName(addr, buf))
	if err != nil {
		return "", err
	}
	return lv.DecodeFixed(buf, len(buf)), nil
}

// SetAutoDataFile sets the name of the next data file.
func (c *Client) SetAutoDataFile(addr, name string) error {
	buf, err := text(name, icapi.MaxPath)
	if err != nil {
		return err
	}
	return check("SetAutoDataFileName", addr, c.lib.SetAutoDataFileName(addr, buf))
}

// text encodes s as a NUL-terminated Latin-1 buffer of at least n bytes.
func text(s string, n int) ([]byte, error) {
	raw, err := lv.Encode(s)
	if err != nil {
		return nil, fmt.Errorf("bridge: could not encode %q: %w", s, err)
	}
	buf := make([]byte, max(n, len(raw)+1))
	copy(buf, raw)
	return buf, nil
}

// NumberOfPeaks returns the number of entries of the peak table.
func (c *Client) NumberOfPeaks(addr string) (int, error) {
	return c.numberOfPeaks("GetNumberOfPeaks", addr, c.lib.GetNumberOfPeaks)
}

func (c *Client) numberOfPeaks(op, addr string, get func(string, int32, *uint32) icapi.Status) (int, error) {
	var n uint32
	// the timeout of this call is ignored by the library.
	err := check(op, addr, get(addr, c.ms(0), &n))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Masses returns the masses of the peak table.
func (c *Client) Masses(addr string) ([]float32, error) {
	return c.masses(addr, c.lib.GetNumberOfPeaks, c.lib.GetTraceMasses)
}

func (c *Client) masses(addr string, npeaks func(string, int32, *uint32) icapi.Status, get func(string, []float32) icapi.Status) ([]float32, error) {
	n, err := c.numberOfPeaks("GetNumberOfPeaks", addr, npeaks)
	if err != nil {
		return nil, err
	}
	masses := make([]float32, n)
	err = check("GetTraceMasses", addr, get(addr, masses))
	if err != nil {
		return nil, err
	}
	return masses, nil
}

// SetMasses replaces the masses of the peak table.
func (c *Client) SetMasses(addr string, masses []float32) error {
	return check("SetTraceMasses", addr, c.lib.SetTraceMasses(addr, masses))
}

// CurrentSpectrum returns the spectrum the instrument currently holds.
func (c *Client) CurrentSpectrum(addr string) (Spectrum, error) {
	return c.currentSpectrum("GetCurrentSpec", addr, c.lib.GetCurrentSpec)
}

type specFunc func(addr string, spec []float32, ti *icapi.TimingInfo, calpar []float32) icapi.Status

func (c *Client) currentSpectrum(op, addr string, get specFunc) (Spectrum, error) {
	n, err := c.Timebins(addr)
	if err != nil {
		return Spectrum{}, err
	}
	var (
		spec = Spectrum{Data: make([]float32, n), CalPara: make([]float64, icapi.NumCalPars)}
		cal  = make([]float32, icapi.NumCalPars)
	)
	err = check(op, addr, get(addr, spec.Data, &spec.Timing, cal))
	if err != nil {
		return Spectrum{}, err
	}
	for i, v := range cal {
		spec.CalPara[i] = float64(v)
	}
	return spec, nil
}

// NextSpectrum waits for the spectrum of the next cycle.
func (c *Client) NextSpectrum(addr string, timeout time.Duration) (Spectrum, error) {
	n, err := c.Timebins(addr)
	if err != nil {
		return Spectrum{}, err
	}
	spec := Spectrum{Data: make([]float32, n), CalPara: make([]float64, icapi.NumCalPars)}
	st := c.lib.GetNextSpec(addr, c.ms(timeout), &spec.Automation, &spec.Timing, spec.CalPara, spec.Data)
	if st == icapi.Error {
		return Spectrum{}, check("GetNextSpec", addr, st)
	}
	return spec, check("GetNextSpec", addr, st)
}

// NextTraces waits for the ion traces of the next cycle.
// Traces are empty when the peak table is empty.
func (c *Client) NextTraces(addr string, timeout time.Duration) (Traces, error) {
	n, err := c.NumberOfPeaks(addr)
	if err != nil {
		return Traces{}, err
	}
	tr := Traces{
		Raw:  make([]float32, n),
		Corr: make([]float32, n),
		Conc: make([]float32, n),
	}
	st := c.lib.GetTraceData(addr, c.ms(timeout), tr.Raw, tr.Corr, tr.Conc)
	if st == icapi.Error {
		return Traces{}, check("GetTraceData", addr, st)
	}
	return tr, check("GetTraceData", addr, st)
}

// NextTrace waits for the ion traces of kind tt of the next cycle.
func (c *Client) NextTrace(addr string, tt icapi.TraceType, timeout time.Duration) (Trace, error) {
	if !tt.Valid() {
		return Trace{}, fmt.Errorf("bridge: invalid trace type %v", tt)
	}
	n, err := c.NumberOfPeaks(addr)
	if err != nil {
		return Trace{}, err
	}
	tr := Trace{Kind: tt, Data: make([]float32, n)}
	st := c.lib.GetTraceDataWithTimingInfo(addr, c.ms(timeout), &tr.Timing, tt, tr.Data)
	if st == icapi.Error {
		return Trace{}, check("GetTraceDataWithTimingInfo", addr, st)
	}
	return tr, check("GetTraceDataWithTimingInfo", addr, st)
}

// SetTrace sends ion traces of kind tt computed for the cycle ti.
func (c *Client) SetTrace(addr string, ti icapi.TimingInfo, tt icapi.TraceType, data []float32) error {
	if !tt.Valid() {
		return fmt.Errorf("bridge: invalid trace type %v", tt)
	}
	return check("SetTraceDataWithTimingInfo", addr, c.lib.SetTraceDataWithTimingInfo(addr, &ti, tt, data))
}

// SetTraces sends the ion traces computed for the cycle ti.
func (c *Client) SetTraces(addr string, ti icapi.TimingInfo, tr Traces) error {
	err := checkShape("raw/corr/conc traces", len(tr.Raw), len(tr.Corr), len(tr.Conc))
	if err != nil {
		return err
	}
	return check("SetTraceData", addr, c.lib.SetTraceData(addr, &ti, tr.Raw, tr.Corr, tr.Conc))
}

// NextTiming waits for the next cycle and returns its relative and
// overall indices. The times are left zero by the library.
func (c *Client) NextTiming(addr string, timeout time.Duration) (icapi.TimingInfo, error) {
	var ti icapi.TimingInfo
	st := c.lib.GetNextTimecycle(addr, c.ms(timeout), &ti)
	if st == icapi.Error {
		return icapi.TimingInfo{}, check("GetNextTimecycle", addr, st)
	}
	return ti, check("GetNextTimecycle", addr, st)
}
