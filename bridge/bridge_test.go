// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/go-lpc/ionitof/bridge"
	"github.com/go-lpc/ionitof/icapi"
	"github.com/go-lpc/ionitof/internal/sim"
)

const addr = "192.168.0.10"

func newTestClient(t *testing.T) (*bridge.Client, *sim.Server) {
	t.Helper()
	srv := sim.New()
	inst := sim.NewInstrument()
	inst.Timebins = 16
	inst.Masses = []float32{21.022, 33.034, 59.049}
	srv.Add(addr, inst)
	c := bridge.New(srv,
		bridge.WithLogger(log.New(io.Discard, "", 0)),
		bridge.WithTimeout(20*time.Millisecond),
		bridge.WithJSONBuffer(1<<16),
	)
	return c, srv
}

func push(t *testing.T, srv *sim.Server, overall, fileLen int) sim.Cycle {
	t.Helper()
	c := sim.Synth(overall, fileLen, 16, 3, time.Unix(1600000000, 0).Add(time.Duration(overall)*time.Second), time.Duration(overall)*time.Second)
	err := srv.Push(addr, c)
	if err != nil {
		t.Fatalf("could not push cycle %d: %+v", overall, err)
	}
	return c
}

func TestNextMonotonic(t *testing.T) {
	c, srv := newTestClient(t)

	var (
		cur  = c.Cursor(addr)
		prev = int32(-1)
	)
	for _, i := range []int{10, 11, 12} {
		push(t, srv, i, 0)

		spec, err := c.NextSpectrum(addr, 0)
		if err != nil {
			t.Fatalf("could not get next spectrum: %+v", err)
		}
		if got, want := spec.Timing.CycleOverall, int32(i); got != want {
			t.Fatalf("invalid overall cycle: got=%d, want=%d", got, want)
		}
		if spec.Timing.CycleOverall < prev {
			t.Fatalf("overall cycle went backwards: %d -> %d", prev, spec.Timing.CycleOverall)
		}
		prev = spec.Timing.CycleOverall

		fc, err := cur.Next(0)
		if err != nil {
			t.Fatalf("could not get next full cycle: %+v", err)
		}
		if got, want := fc.Timing.CycleOverall, int32(i); got != want {
			t.Fatalf("invalid full-cycle overall: got=%d, want=%d", got, want)
		}
	}
	if got, want := cur.Clock().Cycles(), int64(3); got != want {
		t.Fatalf("invalid number of cycles: got=%d, want=%d", got, want)
	}
}

func TestTimeoutStale(t *testing.T) {
	c, srv := newTestClient(t)
	want := push(t, srv, 5, 0)

	_, err := c.NextSpectrum(addr, 0)
	if err != nil {
		t.Fatalf("could not get next spectrum: %+v", err)
	}

	spec, err := c.NextSpectrum(addr, 10*time.Millisecond)
	if !errors.Is(err, bridge.ErrTimeout) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, bridge.ErrTimeout)
	}
	if errors.Is(err, bridge.ErrProtocol) {
		t.Fatalf("timeout reported as protocol error: %+v", err)
	}
	if got, want := bridge.StatusOf(err), icapi.Timeout; got != want {
		t.Fatalf("invalid status: got=%v, want=%v", got, want)
	}
	if !reflect.DeepEqual(spec.Data, want.Spectrum) {
		t.Fatalf("invalid stale spectrum:\ngot= %v\nwant=%v", spec.Data, want.Spectrum)
	}
	if got, want := spec.Timing.CycleOverall, int32(5); got != want {
		t.Fatalf("invalid stale cycle: got=%d, want=%d", got, want)
	}

	// the stale data is still the current one.
	cur, err := c.CurrentSpectrum(addr)
	if err != nil {
		t.Fatalf("could not get current spectrum: %+v", err)
	}
	if !reflect.DeepEqual(cur.Data, spec.Data) {
		t.Fatalf("current and stale spectra differ")
	}
}

func TestProtocolError(t *testing.T) {
	c, srv := newTestClient(t)

	_, err := c.MeasureState("10.0.0.1")
	if !errors.Is(err, bridge.ErrProtocol) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, bridge.ErrProtocol)
	}
	var cerr *bridge.CallError
	if !errors.As(err, &cerr) {
		t.Fatalf("invalid error type %T", err)
	}
	if got, want := cerr.Op, "GetMeasureState"; got != want {
		t.Fatalf("invalid op: got=%q, want=%q", got, want)
	}

	_ = srv.FailNext(addr, 1)
	_, err = c.NextTraces(addr, 0)
	if got, want := bridge.StatusOf(err), icapi.Error; got != want {
		t.Fatalf("invalid status: got=%v, want=%v", got, want)
	}

	err = c.Do(addr, icapi.ServerAction(99))
	if err == nil {
		t.Fatalf("expected an error for an unknown action")
	}
}

func TestServerAction(t *testing.T) {
	c, srv := newTestClient(t)

	act, err := c.ServerAction(addr)
	if err != nil {
		t.Fatalf("could not get server action: %+v", err)
	}
	if got, want := act, icapi.ActIdle; got != want {
		t.Fatalf("invalid server action: got=%v, want=%v", got, want)
	}

	for _, want := range []icapi.ServerAction{
		icapi.ActStartMeasQuick,
		icapi.ActStopMeasurement,
		icapi.ActDisconnectPTR,
	} {
		err := c.Do(addr, want)
		if err != nil {
			t.Fatalf("could not dispatch %v: %+v", want, err)
		}
		got, err := c.ServerAction(addr)
		if err != nil {
			t.Fatalf("could not get server action: %+v", err)
		}
		if got != want {
			t.Fatalf("invalid server action: got=%v, want=%v", got, want)
		}
	}

	_ = srv.Update(addr, func(inst *sim.Instrument) { inst.Action = icapi.ServerAction(99) })
	act, err = c.ServerAction(addr)
	if err != nil {
		t.Fatalf("unknown actions should pass through: %+v", err)
	}
	if got, want := act, icapi.ServerAction(99); got != want {
		t.Fatalf("invalid server action: got=%v, want=%v", got, want)
	}

	_, err = c.ServerAction("10.0.0.1")
	if !errors.Is(err, bridge.ErrProtocol) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, bridge.ErrProtocol)
	}
}

func TestZeroPeaks(t *testing.T) {
	c, srv := newTestClient(t)
	err := c.SetMasses(addr, nil)
	if err != nil {
		t.Fatalf("could not clear peak table: %+v", err)
	}
	_ = srv.Push(addr, sim.Synth(0, 0, 16, 0, time.Now(), 0))

	tr, err := c.NextTraces(addr, 0)
	if err != nil {
		t.Fatalf("could not get traces: %+v", err)
	}
	if tr.Raw == nil || len(tr.Raw) != 0 {
		t.Fatalf("invalid raw traces: %#v", tr.Raw)
	}

	fc, err := c.FullCycle(addr, 0, 0)
	if err != nil {
		t.Fatalf("could not get full cycle: %+v", err)
	}
	if fc.Masses == nil || len(fc.Masses) != 0 || len(fc.Traces.Conc) != 0 {
		t.Fatalf("invalid empty full cycle: %#v", fc.Traces)
	}
	if fc.AddData == nil || len(fc.AddData) != 0 {
		t.Fatalf("invalid add-data: %#v", fc.AddData)
	}
}

func TestFreshInstrument(t *testing.T) {
	c, _ := newTestClient(t)

	start := time.Now()
	fc, err := c.FullCycle(addr, 0, 0)
	if err != nil {
		t.Fatalf("could not get full cycle: %+v", err)
	}
	if got, want := fc.Timing.CycleOverall, int32(0); got != want {
		t.Fatalf("invalid overall cycle: got=%d, want=%d", got, want)
	}
	if fc.AddData == nil || len(fc.AddData) != 0 {
		t.Fatalf("invalid add-data: %#v", fc.AddData)
	}
	if fc.Spectrum == nil || len(fc.Spectrum) != 0 {
		t.Fatalf("invalid spectrum: %#v", fc.Spectrum)
	}

	add, err := c.AddData(addr)
	if err != nil {
		t.Fatalf("could not get add-data: %+v", err)
	}
	if add == nil || len(add) != 0 {
		t.Fatalf("invalid add-data: %#v", add)
	}
	if dt := time.Since(start); dt >= 20*time.Millisecond {
		t.Fatalf("current cycle waited for the timeout: %v", dt)
	}

	// later cycles still wait for the acquisition.
	_, err = c.FullCycle(addr, 1, 0)
	if !errors.Is(err, bridge.ErrTimeout) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, bridge.ErrTimeout)
	}
}

func TestShapeMismatch(t *testing.T) {
	var (
		desc  = []string{"a", "b", "c", "d", "e"}
		units = []string{"V", "V", "A", "A"}
		data  = []float32{1, 2, 3, 4, 5}
	)
	chans, err := bridge.ZipAddData("grp", desc, units, data)
	if !errors.Is(err, bridge.ErrShapeMismatch) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, bridge.ErrShapeMismatch)
	}
	if chans != nil {
		t.Fatalf("shape mismatch should not yield channels: %v", chans)
	}

	c, srv := newTestClient(t)
	src, err := c.NewSource("ext")
	if err != nil {
		t.Fatalf("could not create source: %+v", err)
	}
	defer src.Close()

	err = src.Update(desc, units, data)
	if !errors.Is(err, bridge.ErrShapeMismatch) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, bridge.ErrShapeMismatch)
	}
	push(t, srv, 0, 0)
	names, err := c.AddDataNames(addr)
	if err != nil {
		t.Fatalf("could not get add-data names: %+v", err)
	}
	if len(names) != 0 {
		t.Fatalf("mismatched add-data reached the instrument: %q", names)
	}
}

func TestAddDataSource(t *testing.T) {
	c, srv := newTestClient(t)

	src, err := c.NewSource("meteo")
	if err != nil {
		t.Fatalf("could not create source: %+v", err)
	}
	_, err = c.NewSource("meteo")
	if !errors.Is(err, bridge.ErrProtocol) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, bridge.ErrProtocol)
	}

	err = src.Publish([]bridge.AddDataChannel{
		{Description: "T", Unit: "°C", Value: 21.5},
		{Description: "p", Unit: "mbar", Value: 1013},
	})
	if err != nil {
		t.Fatalf("could not publish: %+v", err)
	}
	push(t, srv, 0, 0)

	got, err := c.AddData(addr)
	if err != nil {
		t.Fatalf("could not get add-data: %+v", err)
	}
	want := []bridge.AddDataChannel{
		{Description: "T", Group: "meteo", Unit: "°C", Value: 21.5},
		{Description: "p", Group: "meteo", Unit: "mbar", Value: 1013},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid add-data:\ngot= %+v\nwant=%+v", got, want)
	}

	err = src.SetUnitsText([]string{"K", "hPa"})
	if err != nil {
		t.Fatalf("could not set units: %+v", err)
	}
	err = src.SetDescriptionText([]string{"T\tx"})
	if err == nil {
		t.Fatalf("expected an error for an entry holding a separator")
	}
	push(t, srv, 1, 0)

	names, err := c.AddDataNames(addr)
	if err != nil {
		t.Fatalf("could not get names: %+v", err)
	}
	jnames, err := c.AddDataNamesJSON(addr)
	if err != nil {
		t.Fatalf("could not get JSON names: %+v", err)
	}
	if !reflect.DeepEqual(names, jnames) {
		t.Fatalf("names differ: bin=%q, json=%q", names, jnames)
	}
	vs, _, err := c.AddDataValues(addr)
	if err != nil {
		t.Fatalf("could not get values: %+v", err)
	}
	if got, want := vs, []float32{21.5, 1013}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid values: got=%v, want=%v", got, want)
	}
	name, err := c.AddDataName(addr, 1)
	if err != nil {
		t.Fatalf("could not get name: %+v", err)
	}
	if got, want := name, "p"; got != want {
		t.Fatalf("invalid name: got=%q, want=%q", got, want)
	}

	err = src.Close()
	if err != nil {
		t.Fatalf("could not close source: %+v", err)
	}
	if err := src.Close(); err == nil {
		t.Fatalf("expected an error closing a disposed source")
	}

	_, err = bridge.New(sim.New(sim.WithoutAddData())).NewSource("x")
	if err == nil {
		t.Fatalf("expected an error without add-data library")
	}
}

func TestParamsJSONBinary(t *testing.T) {
	srv := sim.New()
	inst := sim.NewInstrument()
	inst.Params = []sim.Param{
		{Name: "Udrift", Index: 0, Value: 350},
		{Name: "Us", Index: 1, Value: 80},
	}
	srv.Add(addr, inst)
	c := bridge.New(srv, bridge.WithLogger(log.New(io.Discard, "", 0)))

	want := []bridge.Param{
		{Name: "Udrift", Index: 0, Value: 350},
		{Name: "Us", Index: 1, Value: 80},
	}

	bin, err := c.Parameters(addr)
	if err != nil {
		t.Fatalf("could not get parameters: %+v", err)
	}
	jsn, err := c.ParametersJSON(addr)
	if err != nil {
		t.Fatalf("could not get JSON parameters: %+v", err)
	}
	if !reflect.DeepEqual(bin, want) {
		t.Fatalf("invalid binary parameters:\ngot= %+v\nwant=%+v", bin, want)
	}
	if !reflect.DeepEqual(jsn, want) {
		t.Fatalf("invalid JSON parameters:\ngot= %+v\nwant=%+v", jsn, want)
	}

	err = c.SetParametersJSON(addr, []bridge.Param{{Name: "Us", Index: 1, Value: 70}})
	if err != nil {
		t.Fatalf("could not set JSON parameters: %+v", err)
	}
	err = c.SetParameters(addr, []bridge.Param{{Name: "Udrift", Value: 400}})
	if err != nil {
		t.Fatalf("could not set parameters: %+v", err)
	}
	v, err := c.Parameter(addr, "Us")
	if err != nil {
		t.Fatalf("could not get parameter: %+v", err)
	}
	if got, want := v, float32(70); got != want {
		t.Fatalf("invalid value: got=%v, want=%v", got, want)
	}
	err = c.SetParameter(addr, "Udrift", 410)
	if err != nil {
		t.Fatalf("could not set parameter: %+v", err)
	}
	if v, _ := c.Parameter(addr, "Udrift"); v != 410 {
		t.Fatalf("invalid value: got=%v, want=%v", v, 410)
	}
	if err := c.SetParameter(addr, "nope", 1); !errors.Is(err, bridge.ErrProtocol) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, bridge.ErrProtocol)
	}

	err = c.ScheduleParameters(addr, []bridge.Param{{Name: "Us", Value: 60}})
	if err != nil {
		t.Fatalf("could not schedule parameters: %+v", err)
	}
	push(t, srv, 0, 0)
	if v, _ := c.Parameter(addr, "Us"); v != 60 {
		t.Fatalf("invalid scheduled value: got=%v, want=%v", v, 60)
	}

	rows, err := c.PTRData(addr)
	if err != nil {
		t.Fatalf("could not read PTR data: %+v", err)
	}
	if got, want := len(rows), 2; got != want {
		t.Fatalf("invalid PTR rows: got=%d, want=%d", got, want)
	}
	if got, want := rows[1].Set, 60.0; got != want {
		t.Fatalf("invalid PTR set value: got=%v, want=%v", got, want)
	}

	rows[0].Set = 420
	rows[1].Set = math.NaN()
	err = c.SetPTRData(addr, rows)
	if err != nil {
		t.Fatalf("could not write PTR data: %+v", err)
	}
	if v, _ := c.Parameter(addr, "Udrift"); v != 420 {
		t.Fatalf("invalid PTR value: got=%v, want=%v", v, 420)
	}
	if v, _ := c.Parameter(addr, "Us"); v != 60 {
		t.Fatalf("skipped PTR row modified: got=%v, want=%v", v, 60)
	}

	// rows are applied all or nothing.
	err = c.SetPTRData(addr, []bridge.PTRParam{
		{Name: "Udrift", Set: 300},
		{Name: "nope", Set: 1},
	})
	if !errors.Is(err, bridge.ErrProtocol) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, bridge.ErrProtocol)
	}
	if v, _ := c.Parameter(addr, "Udrift"); v != 420 {
		t.Fatalf("failed PTR write modified value: got=%v, want=%v", v, 420)
	}

	err = c.SetPTRData(addr, nil)
	if err != nil {
		t.Fatalf("could not write empty PTR data: %+v", err)
	}

	if got, want := c.Arena().Live(), 0; got != want {
		t.Fatalf("leaked handles: got=%d, want=%d", got, want)
	}
}

func TestNoLeaks(t *testing.T) {
	c, srv := newTestClient(t)
	mem := c.Arena()

	src, err := c.NewSource("ext")
	if err != nil {
		t.Fatalf("could not create source: %+v", err)
	}
	err = src.Update([]string{"a"}, []string{"V"}, []float32{1})
	if err != nil {
		t.Fatalf("could not update source: %+v", err)
	}
	_ = srv.Update(addr, func(inst *sim.Instrument) { inst.Errors[3] = "overheat" })

	push(t, srv, 0, 0)
	for _, f := range []func() error{
		func() error { _, err := c.FullCycle(addr, 0, 0); return err },
		func() error { _, err := c.ConcInfo(addr); return err },
		func() error { _, err := c.Parameters(addr); return err },
		func() error { _, err := c.AddDataNames(addr); return err },
		func() error { _, err := c.ErrorInfos(addr); return err },
		func() error { _, err := c.PTRData(addr); return err },
	} {
		err := f()
		if err != nil {
			t.Fatalf("could not call: %+v", err)
		}
		if got, want := mem.Live(), 0; got != want {
			t.Fatalf("leaked handles: got=%d, want=%d", got, want)
		}
	}

	// failed calls release their scratch handles too.
	_ = srv.FailNext(addr, 1)
	_, err = c.FullCycle(addr, 0, 0)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if got, want := mem.Live(), 0; got != want {
		t.Fatalf("leaked handles: got=%d, want=%d", got, want)
	}

	infos, err := c.ErrorInfos(addr)
	if err != nil {
		t.Fatalf("could not get error infos: %+v", err)
	}
	if got, want := infos, []string{"3: overheat"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid infos: got=%q, want=%q", got, want)
	}
	codes, err := c.ErrorCodes(addr)
	if err != nil {
		t.Fatalf("could not get error codes: %+v", err)
	}
	if got, want := codes, []int32{3}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid codes: got=%v, want=%v", got, want)
	}
}

func TestClock(t *testing.T) {
	var clk bridge.Clock
	for _, tc := range []struct {
		ti      icapi.TimingInfo
		newFile bool
		err     bool
	}{
		{ti: icapi.TimingInfo{Cycle: 8, CycleOverall: 8}},
		{ti: icapi.TimingInfo{Cycle: 9, CycleOverall: 9}},
		{ti: icapi.TimingInfo{Cycle: 0, CycleOverall: 10}, newFile: true},
		{ti: icapi.TimingInfo{Cycle: 0, CycleOverall: 10}},
		{ti: icapi.TimingInfo{Cycle: 1, CycleOverall: 9}, err: true},
	} {
		newFile, err := clk.Observe(tc.ti)
		switch {
		case tc.err && err == nil:
			t.Fatalf("expected an error for %+v", tc.ti)
		case !tc.err && err != nil:
			t.Fatalf("could not observe %+v: %+v", tc.ti, err)
		}
		if newFile != tc.newFile {
			t.Fatalf("invalid new-file flag for %+v: got=%v, want=%v", tc.ti, newFile, tc.newFile)
		}
	}
	last, ok := clk.Last()
	if !ok || last.CycleOverall != 10 {
		t.Fatalf("invalid last cycle: %+v", last)
	}
}

func TestCursorNewFile(t *testing.T) {
	c, srv := newTestClient(t)
	cur := c.Cursor(addr).JSON()

	var files []bool
	for i := 0; i < 4; i++ {
		push(t, srv, i, 2)
		fc, err := cur.Next(0)
		if err != nil {
			t.Fatalf("could not get cycle %d: %+v", i, err)
		}
		files = append(files, fc.NewFile)
	}
	if got, want := files, []bool{false, false, true, false}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid new-file flags: got=%v, want=%v", got, want)
	}

	fc, err := cur.Next(5 * time.Millisecond)
	if !errors.Is(err, bridge.ErrTimeout) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, bridge.ErrTimeout)
	}
	if got, want := fc.Timing.CycleOverall, int32(3); got != want {
		t.Fatalf("invalid stale cycle: got=%d, want=%d", got, want)
	}
}

func TestPoll(t *testing.T) {
	c, srv := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for i := 0; ; i++ {
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Millisecond):
				_ = srv.Push(addr, sim.Synth(i, 0, 16, 3, time.Now(), 0))
			}
		}
	}()

	var seen []int32
	err := bridge.Poll(ctx, func() (icapi.TimingInfo, error) {
		return c.NextTiming(addr, 10*time.Millisecond)
	}, func(ti icapi.TimingInfo) error {
		seen = append(seen, ti.CycleOverall)
		if len(seen) == 3 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, context.Canceled)
	}
	if got, want := len(seen), 3; got != want {
		t.Fatalf("invalid number of cycles: got=%d, want=%d", got, want)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("cycles not increasing: %v", seen)
		}
	}
}

func TestLegacySurfaces(t *testing.T) {
	c, srv := newTestClient(t)
	push(t, srv, 7, 0)

	spec, err := c.CurrentSpectrum(addr)
	if err != nil {
		t.Fatalf("could not get spectrum: %+v", err)
	}
	old, err := c.CurrentSpectrumOld(addr)
	if err != nil {
		t.Fatalf("could not get legacy spectrum: %+v", err)
	}
	if !reflect.DeepEqual(spec, old) {
		t.Fatalf("spectra differ:\nnew=%+v\nold=%+v", spec, old)
	}

	err = c.SetMassesOld(addr, []float32{1, 2})
	if err != nil {
		t.Fatalf("could not set masses: %+v", err)
	}
	m1, _ := c.Masses(addr)
	m2, _ := c.MassesOld(addr)
	if !reflect.DeepEqual(m1, m2) || len(m1) != 2 {
		t.Fatalf("masses differ: new=%v, old=%v", m1, m2)
	}
	n, _ := c.NumberOfPeaksOld(addr)
	if n != 2 {
		t.Fatalf("invalid number of peaks: got=%d, want=%d", n, 2)
	}

	bin, err := c.FullCycle(addr, 0, 0)
	if err != nil {
		t.Fatalf("could not get full cycle: %+v", err)
	}
	jsn, err := c.FullCycleJSON(addr, 0, 0)
	if err != nil {
		t.Fatalf("could not get JSON full cycle: %+v", err)
	}
	if !reflect.DeepEqual(bin, jsn) {
		t.Fatalf("full cycles differ:\nbin= %+v\njson=%+v", bin, jsn)
	}

	sgl := icapi.SGL(3.7e9, 12.5)
	ti, err := c.ConvertTiming(sgl[:])
	if err != nil {
		t.Fatalf("could not convert timing: %+v", err)
	}
	if ti.AbsTime != 3.7e9 || ti.RelTime != 12.5 {
		t.Fatalf("invalid timing: %+v", ti)
	}
	if _, err := c.ConvertTiming(sgl[:2]); err == nil {
		t.Fatalf("expected an error for a short timing record")
	}
}

func TestConcInfo(t *testing.T) {
	c, srv := newTestClient(t)

	var doc icapi.ConcInfoDoc
	v := &doc.DataElement.Value
	v.InstModeAndParas = "H3O+"
	v.PISets.Current = 1
	v.PISets.Sets = []icapi.PISetDoc{
		{Name: "H3O+", Masses: []float32{21.022, 0}, Multiplier: []float32{500, 0}},
		{Name: "NO+", Masses: []float32{30.994}, Multiplier: []float32{1}},
		{Name: "", Masses: []float32{}, Multiplier: []float32{}},
		{Name: "ignored", Masses: []float32{1}, Multiplier: []float32{1}},
	}
	v.Presets.Names = []string{"default"}
	v.TransSets.Sets = []icapi.TransSetDoc{
		{Name: "T1", Voltage: 600, Mass: []float32{21, 59, 0}, Value: []float32{0.5, 1, 0}},
	}
	_ = srv.Update(addr, func(inst *sim.Instrument) { inst.ConcInfo = doc })

	bin, err := c.ConcInfo(addr)
	if err != nil {
		t.Fatalf("could not get conc info: %+v", err)
	}
	jsn, err := c.ConcInfoJSON(addr)
	if err != nil {
		t.Fatalf("could not get JSON conc info: %+v", err)
	}
	if !reflect.DeepEqual(bin, jsn) {
		t.Fatalf("conc infos differ:\nbin= %+v\njson=%+v", bin, jsn)
	}
	if got, want := len(bin.PrimaryIons), 2; got != want {
		t.Fatalf("invalid number of primary ions: got=%d, want=%d", got, want)
	}

	pi, err := c.PrimaryIon(addr)
	if err != nil {
		t.Fatalf("could not get primary ion: %+v", err)
	}
	if got, want := pi.Name, "NO+"; got != want {
		t.Fatalf("invalid primary ion: got=%q, want=%q", got, want)
	}
	tr, err := c.Transmission(addr)
	if err != nil {
		t.Fatalf("could not get transmission: %+v", err)
	}
	if got, want := tr.Masses, []float32{21, 59}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid transmission masses: got=%v, want=%v", got, want)
	}

	v.TransSets.Sets[0].Value = []float32{1}
	_ = srv.Update(addr, func(inst *sim.Instrument) { inst.ConcInfo = doc })
	_, err = c.ConcInfo(addr)
	if !errors.Is(err, bridge.ErrShapeMismatch) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, bridge.ErrShapeMismatch)
	}
}

func TestMeasurement(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := c.StartMeasurement(ctx, addr, `D:\Data\run.h5`)
	if err != nil {
		t.Fatalf("could not start measurement: %+v", err)
	}
	file, err := c.DataFile(addr)
	if err != nil {
		t.Fatalf("could not get data file: %+v", err)
	}
	if got, want := file, `D:\Data\run.h5`; got != want {
		t.Fatalf("invalid data file: got=%q, want=%q", got, want)
	}
	err = c.StopMeasurement(ctx, addr)
	if err != nil {
		t.Fatalf("could not stop measurement: %+v", err)
	}

	st, err := c.ServerState(addr)
	if err != nil {
		t.Fatalf("could not get server state: %+v", err)
	}
	if got, want := st, icapi.StateOK; got != want {
		t.Fatalf("invalid server state: got=%v, want=%v", got, want)
	}

	if err := c.SetAutoDataFile(addr, "Ω.h5"); !errors.Is(err, bridge.ErrEncodingRange) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, bridge.ErrEncodingRange)
	}
}

func TestFullCycleFlat(t *testing.T) {
	c, srv := newTestClient(t)
	push(t, srv, 7, 0)

	want, flat, err := c.FullCycleFlat(addr, 7, 0)
	if err != nil {
		t.Fatalf("could not get flat full cycle: %+v", err)
	}
	if len(flat) == 0 {
		t.Fatalf("empty flattened full cycle")
	}

	got, err := c.DecodeFullCycle(bytes.NewReader(flat))
	if err != nil {
		t.Fatalf("could not decode flat full cycle: %+v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid round-trip:\ngot= %+v\nwant=%+v", got, want)
	}

	_, err = c.DecodeFullCycle(bytes.NewReader(flat[:len(flat)/2]))
	if !errors.Is(err, bridge.ErrProtocol) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, bridge.ErrProtocol)
	}

	if got, want := c.Arena().Live(), 0; got != want {
		t.Fatalf("invalid number of live handles: got=%d, want=%d", got, want)
	}
}
