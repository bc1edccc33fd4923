// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/ionitof/icapi"
	"github.com/go-lpc/ionitof/lv"
)

var _ icapi.Lib = (*Server)(nil)

func (srv *Server) GetVersion(str []byte) float64 {
	_, _ = lv.EncodeFixed(str, "IcAPI sim "+strconv.FormatFloat(srv.version, 'f', 4, 64))
	return srv.version
}

// with runs f with the instrument at addr under the server lock.
func (srv *Server) with(addr string, f func(inst *Instrument) icapi.Status) icapi.Status {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	inst, ok := srv.instrument(addr)
	if !ok {
		return icapi.Error
	}
	return f(inst)
}

func (srv *Server) GetMeasureState(addr string, st *icapi.MeasureState) icapi.Status {
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		*st = inst.Measure
		return icapi.Ok
	})
}

func (srv *Server) GetServerState(addr string, st *icapi.ServerState) icapi.Status {
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		*st = inst.State
		return icapi.Ok
	})
}

func (srv *Server) GetServerAction(addr string, act *icapi.ServerAction) icapi.Status {
	if act == nil {
		return icapi.Error
	}
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		*act = inst.Action
		return icapi.Ok
	})
}

func (srv *Server) SetServerAction(addr string, act icapi.ServerAction) icapi.Status {
	if !act.Valid() {
		srv.msg.Printf("invalid server action %d", act)
		return icapi.Error
	}
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		inst.Action = act
		switch act {
		case icapi.ActStartMeasQuick, icapi.ActStartMeasAuto, icapi.ActStartRepeatedMeasurement:
			inst.Measure = icapi.MeasurementActive
		case icapi.ActStartMeasRecord:
			inst.Measure = icapi.MeasurementActive
			if inst.AutoFile != "" {
				inst.File = inst.AutoFile
			}
		case icapi.ActStopMeasurement, icapi.ActStopAfterCurrentRun:
			inst.Measure = icapi.ReadyIdle
		case icapi.ActDisconnect:
			inst.State = icapi.StateDisconnected
		case icapi.ActReconnect:
			inst.State = icapi.StateOK
		case icapi.ActCloseNoPrompt, icapi.ActCloseWithPrompt:
			inst.Measure = icapi.CloseServer
			inst.State = icapi.StateClosed
		}
		return icapi.Ok
	})
}

func (srv *Server) GetNumberOfTimebins(addr string, n *int32) icapi.Status {
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		*n = inst.Timebins
		return icapi.Ok
	})
}

func (srv *Server) GetCurrentDataFileName(addr string, file []byte) icapi.Status {
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		_, err := lv.EncodeFixed(file, inst.File)
		if err != nil {
			srv.msg.Printf("could not encode file name: %+v", err)
			return icapi.Error
		}
		return icapi.Ok
	})
}

func (srv *Server) SetAutoDataFileName(addr string, name []byte) icapi.Status {
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		inst.AutoFile = lv.DecodeFixed(name, len(name))
		return icapi.Ok
	})
}

func (srv *Server) GetNumberOfPeaks(addr string, timeout int32, n *uint32) icapi.Status {
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		*n = uint32(len(inst.Masses))
		return icapi.Ok
	})
}

func (srv *Server) GetNumberOfPeaksOld(addr string, timeout int32, n *uint32) icapi.Status {
	return srv.GetNumberOfPeaks(addr, timeout, n)
}

func (srv *Server) GetTraceMasses(addr string, masses []float32) icapi.Status {
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		copy(masses, inst.Masses)
		return icapi.Ok
	})
}

func (srv *Server) GetTraceMassesOld(addr string, masses []float32) icapi.Status {
	return srv.GetTraceMasses(addr, masses)
}

func (srv *Server) SetTraceMasses(addr string, masses []float32) icapi.Status {
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		inst.Masses = append(inst.Masses[:0:0], masses...)
		return icapi.Ok
	})
}

func (srv *Server) SetTraceMassesOld(addr string, masses []float32) icapi.Status {
	return srv.SetTraceMasses(addr, masses)
}

func (srv *Server) GetCurrentSpec(addr string, spec []float32, ti *icapi.TimingInfo, calpar []float32) icapi.Status {
	c, _, st := srv.current(addr)
	if st != icapi.Ok {
		return st
	}
	copy(spec, c.Spectrum)
	if ti != nil {
		*ti = c.Timing.Timing()
	}
	for i := range calpar {
		if i < len(c.CalPara) {
			calpar[i] = float32(c.CalPara[i])
		}
	}
	return icapi.Ok
}

func (srv *Server) GetCurrentSpecOld(addr string, spec []float32, ti *icapi.TimingInfo, calpar []float32) icapi.Status {
	return srv.GetCurrentSpec(addr, spec, ti, calpar)
}

func (srv *Server) GetNextSpec(addr string, timeout int32, auto *icapi.Automation, ti *icapi.TimingInfo, calpar []float64, spec []float32) icapi.Status {
	c, st := srv.next(addr, "spec", timeout)
	if st == icapi.Error {
		return st
	}
	if auto != nil {
		*auto = c.Automation
	}
	if ti != nil {
		*ti = c.Timing.Timing()
	}
	copy(calpar, c.CalPara)
	copy(spec, c.Spectrum)
	return st
}

func (srv *Server) GetTraceData(addr string, timeout int32, raw, corr, conc []float32) icapi.Status {
	c, st := srv.next(addr, "trace", timeout)
	if st == icapi.Error {
		return st
	}
	copy(raw, c.Raw)
	copy(corr, c.Corr)
	copy(conc, c.Conc)
	return st
}

func traceOf(c *Cycle, tt icapi.TraceType) *[]float32 {
	switch tt {
	case icapi.TraceRaw:
		return &c.Raw
	case icapi.TraceCorr:
		return &c.Corr
	case icapi.TraceConc:
		return &c.Conc
	}
	return nil
}

func (srv *Server) GetTraceDataWithTimingInfo(addr string, timeout int32, ti *icapi.TimingInfo, tt icapi.TraceType, data []float32) icapi.Status {
	if !tt.Valid() {
		srv.msg.Printf("invalid trace type %v", tt)
		return icapi.Error
	}
	c, st := srv.next(addr, "trace-timing", timeout)
	if st == icapi.Error {
		return st
	}
	if ti != nil {
		*ti = c.Timing.Timing()
	}
	copy(data, *traceOf(&c, tt))
	return st
}

func (srv *Server) SetTraceDataWithTimingInfo(addr string, ti *icapi.TimingInfo, tt icapi.TraceType, data []float32) icapi.Status {
	if !tt.Valid() || ti == nil {
		return icapi.Error
	}
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		setTiming(&inst.cur.Timing, *ti)
		*traceOf(&inst.cur, tt) = append([]float32{}, data...)
		return icapi.Ok
	})
}

func (srv *Server) SetTraceData(addr string, ti *icapi.TimingInfo, raw, corr, conc []float32) icapi.Status {
	if ti == nil {
		return icapi.Error
	}
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		setTiming(&inst.cur.Timing, *ti)
		inst.cur.Raw = append([]float32{}, raw...)
		inst.cur.Corr = append([]float32{}, corr...)
		inst.cur.Conc = append([]float32{}, conc...)
		return icapi.Ok
	})
}

func setTiming(tc *icapi.TimeCycle, ti icapi.TimingInfo) {
	tc.Cycle = float64(ti.Cycle)
	tc.OverallCycle = float64(ti.CycleOverall)
	tc.AbsTime = ti.AbsTime
	tc.RelTime = ti.RelTime
}

func (srv *Server) GetNextTimecycle(addr string, timeout int32, ti *icapi.TimingInfo) icapi.Status {
	c, st := srv.next(addr, "timecycle", timeout)
	if st == icapi.Error {
		return st
	}
	if ti != nil {
		ti.Cycle = int32(c.Timing.Cycle)
		ti.CycleOverall = int32(c.Timing.OverallCycle)
	}
	return st
}

func (srv *Server) ConvertTimingInfo(sgl []float32, ti *icapi.TimingInfo) icapi.Status {
	abs, rel, err := icapi.FromSGL(sgl)
	if err != nil || ti == nil {
		return icapi.Error
	}
	ti.AbsTime = abs
	ti.RelTime = rel
	return icapi.Ok
}

// fullCycle waits for a cycle whose overall index is at least *overall.
// A nil or zero *overall returns the current cycle without waiting, even
// before the first acquisition.
func (srv *Server) fullCycle(addr string, timeout int32, overall *uint32) (Cycle, []float32, icapi.Status) {
	least := uint32(0)
	if overall != nil {
		least = *overall
	}
	var masses []float32
	c, st := srv.wait(addr, timeout, func(inst *Instrument) bool {
		masses = append([]float32{}, inst.Masses...)
		if least == 0 {
			return true
		}
		return inst.seq > 0 && uint32(inst.cur.Timing.OverallCycle) >= least
	})
	if st != icapi.Error && overall != nil {
		*overall = uint32(c.Timing.OverallCycle)
	}
	return c, masses, st
}

func (srv *Server) GetFullCycleData(addr string, timeout int32, overall *uint32, data lv.Record) icapi.Status {
	c, masses, st := srv.fullCycle(addr, timeout, overall)
	if st == icapi.Error {
		return st
	}
	err := putFullCycle(data, c, masses)
	if err != nil {
		srv.msg.Printf("%+v", err)
		return icapi.Error
	}
	return st
}

func (srv *Server) GetFullCycleDataJson(addr string, timeout int32, overall *uint32, buf []byte) icapi.Status {
	c, masses, st := srv.fullCycle(addr, timeout, overall)
	if st == icapi.Error {
		return st
	}
	err := icapi.MarshalText(buf, fullCycleDoc(c, masses))
	if err != nil {
		srv.msg.Printf("%+v", err)
		return icapi.Error
	}
	return st
}

func (srv *Server) GetConcInfo(addr string, timeout int32, data lv.Record) icapi.Status {
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		err := putConcInfo(data, inst.ConcInfo)
		if err != nil {
			srv.msg.Printf("%+v", err)
			return icapi.Error
		}
		return icapi.Ok
	})
}

func (srv *Server) GetConcInfoJson(addr string, timeout int32, buf []byte) icapi.Status {
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		err := icapi.MarshalText(buf, inst.ConcInfo)
		if err != nil {
			srv.msg.Printf("%+v", err)
			return icapi.Error
		}
		return icapi.Ok
	})
}

// set sets the named parameter from its text value.
func (inst *Instrument) set(name, value string) error {
	p := inst.param(name)
	if p == nil {
		return fmt.Errorf("sim: unknown parameter %q", name)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
	if err != nil {
		return fmt.Errorf("sim: invalid value for parameter %q: %w", name, err)
	}
	p.Value = float32(v)
	return nil
}

func splitParam(txt string) (name, value string, err error) {
	i := strings.LastIndexByte(txt, ':')
	if i < 0 {
		return "", "", fmt.Errorf("sim: invalid parameter assignment %q", txt)
	}
	return strings.TrimSpace(txt[:i]), txt[i+1:], nil
}

func (srv *Server) SetParameter(addr string, par []byte) icapi.Status {
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		name, value, err := splitParam(lv.DecodeFixed(par, len(par)))
		if err == nil {
			err = inst.set(name, value)
		}
		if err != nil {
			srv.msg.Printf("could not set parameter: %+v", err)
			return icapi.Error
		}
		return icapi.Ok
	})
}

func (srv *Server) setParameters(addr string, pars *lv.Handle, now bool) icapi.Status {
	if pars == nil || pars.Kind() != lv.StringRef {
		return icapi.Error
	}
	txts := pars.Strings()
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		kvs := make([][2]string, 0, len(txts))
		for _, txt := range txts {
			name, value, err := splitParam(txt)
			if err != nil {
				srv.msg.Printf("could not set parameters: %+v", err)
				return icapi.Error
			}
			if inst.param(name) == nil {
				srv.msg.Printf("unknown parameter %q", name)
				return icapi.Error
			}
			kvs = append(kvs, [2]string{name, value})
		}
		if !now {
			inst.sched = append(inst.sched, kvs...)
			return icapi.Ok
		}
		for _, kv := range kvs {
			err := inst.set(kv[0], kv[1])
			if err != nil {
				srv.msg.Printf("could not set parameters: %+v", err)
				return icapi.Error
			}
		}
		return icapi.Ok
	})
}

func (srv *Server) SetParameters(addr string, pars *lv.Handle) icapi.Status {
	return srv.setParameters(addr, pars, true)
}

func (srv *Server) SetParametersScheduled(addr string, pars *lv.Handle) icapi.Status {
	return srv.setParameters(addr, pars, false)
}

func (srv *Server) SetParametersAsJson(addr string, pars []byte) icapi.Status {
	var docs []icapi.ParamDoc
	err := icapi.UnmarshalText(pars, &docs)
	if err != nil {
		srv.msg.Printf("could not decode parameters: %+v", err)
		return icapi.Error
	}
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		for _, doc := range docs {
			if inst.param(doc.Name) == nil {
				srv.msg.Printf("unknown parameter %q", doc.Name)
				return icapi.Error
			}
		}
		for _, doc := range docs {
			inst.param(doc.Name).Value = doc.Value
		}
		return icapi.Ok
	})
}

func (srv *Server) GetParameter(addr string, name []byte, v *float32) icapi.Status {
	key := lv.DecodeFixed(name, len(name))
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		p := inst.param(key)
		if p == nil {
			srv.msg.Printf("unknown parameter %q", key)
			return icapi.Error
		}
		*v = p.Value
		return icapi.Ok
	})
}

// strings stores vs into the string-reference output handle *slot.
func (srv *Server) strings(slot **lv.Handle, vs []string) error {
	if slot == nil {
		return lv.ErrNilHandle
	}
	if *slot == nil {
		h, err := srv.mem.Allocate(lv.StringRef, 0)
		if err != nil {
			return err
		}
		*slot = h
	}
	return (*slot).SetStrings(vs)
}

func (srv *Server) GetParameters(addr string, names **lv.Handle, values []float32, indices []int32) icapi.Status {
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		keys := make([]string, len(inst.Params))
		for i, p := range inst.Params {
			keys[i] = p.Name
			if i < len(values) {
				values[i] = p.Value
			}
			if i < len(indices) {
				indices[i] = p.Index
			}
		}
		err := srv.strings(names, keys)
		if err != nil {
			srv.msg.Printf("could not store parameter names: %+v", err)
			return icapi.Error
		}
		return icapi.Ok
	})
}

func (srv *Server) GetParametersAsJson(addr string, names []byte, values []float32, indices []int32) icapi.Status {
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		keys := make([]string, len(inst.Params))
		for i, p := range inst.Params {
			keys[i] = p.Name
			if i < len(values) {
				values[i] = p.Value
			}
			if i < len(indices) {
				indices[i] = p.Index
			}
		}
		err := icapi.MarshalText(names, keys)
		if err != nil {
			srv.msg.Printf("%+v", err)
			return icapi.Error
		}
		return icapi.Ok
	})
}

func (srv *Server) ReadPTRData(addr string, table **lv.Handle) icapi.Status {
	if table == nil {
		return icapi.Error
	}
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		var (
			rows = len(inst.Params)
			cols = icapi.NumPTRFields
			err  error
		)
		if *table == nil {
			*table, err = srv.mem.Allocate2D(lv.StringRef, rows, cols)
		} else {
			err = srv.mem.Resize(*table, rows, cols)
		}
		if err != nil {
			srv.msg.Printf("could not allocate PTR table: %+v", err)
			return icapi.Error
		}

		ts := strconv.FormatFloat(icapi.AbsTime(time.Now()), 'f', 3, 64)
		for i, p := range inst.Params {
			row := make([]string, cols)
			row[icapi.PTRName] = p.Name
			row[icapi.PTRIndex] = strconv.Itoa(int(p.Index))
			row[icapi.PTRAltName] = p.AltName
			row[icapi.PTRSet] = strconv.FormatFloat(float64(p.Value), 'g', -1, 32)
			row[icapi.PTRAct] = row[icapi.PTRSet]
			row[icapi.PTRUnit] = p.Unit
			row[icapi.PTRTime] = ts
			for j, v := range row {
				str, err := srv.mem.Allocate(lv.String, 0)
				if err == nil {
					err = str.SetText(v)
				}
				if err == nil {
					err = (*table).SetElem(i*cols+j, str)
				}
				if err != nil {
					srv.msg.Printf("could not fill PTR table: %+v", err)
					return icapi.Error
				}
			}
		}
		return icapi.Ok
	})
}

func (srv *Server) WritePTRData(addr string, table *lv.Handle) icapi.Status {
	if table == nil || table.Kind() != lv.StringRef {
		return icapi.Error
	}
	dims := table.Dims()
	if len(dims) != 2 || (dims[0] > 0 && dims[1] != icapi.NumPTRFields) {
		srv.msg.Printf("invalid PTR table dimensions %v", dims)
		return icapi.Error
	}
	var (
		cols  = dims[1]
		cells = table.Strings()
	)
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		kvs := make([][2]string, 0, dims[0])
		for i := 0; i < dims[0]; i++ {
			row := cells[i*cols : (i+1)*cols]
			name, value := row[icapi.PTRName], row[icapi.PTRSet]
			if strings.TrimSpace(value) == "" {
				continue
			}
			if inst.param(name) == nil {
				srv.msg.Printf("unknown PTR parameter %q", name)
				return icapi.Error
			}
			if _, err := strconv.ParseFloat(strings.TrimSpace(value), 32); err != nil {
				srv.msg.Printf("invalid PTR set value %q for %q", value, name)
				return icapi.Error
			}
			kvs = append(kvs, [2]string{name, value})
		}
		for _, kv := range kvs {
			_ = inst.set(kv[0], kv[1])
		}
		return icapi.Ok
	})
}

// channels returns the flattened add-data channel names and values of c.
func channels(c Cycle) (names []string, values []float32) {
	for _, grp := range c.AddData {
		for i, desc := range grp.Desc {
			names = append(names, desc)
			var v float32
			if i < len(grp.Data) {
				v = grp.Data[i]
			}
			values = append(values, v)
		}
	}
	return names, values
}

func (srv *Server) GetAddDataNames(addr string, names **lv.Handle) icapi.Status {
	c, _, st := srv.current(addr)
	if st != icapi.Ok {
		return st
	}
	keys, _ := channels(c)
	err := srv.strings(names, keys)
	if err != nil {
		srv.msg.Printf("could not store add-data names: %+v", err)
		return icapi.Error
	}
	return icapi.Ok
}

func (srv *Server) GetAddDataValues(addr string, values []float32, t *float64) icapi.Status {
	c, _, st := srv.current(addr)
	if st != icapi.Ok {
		return st
	}
	_, vs := channels(c)
	copy(values, vs)
	if t != nil {
		*t = c.Timing.AbsTime
	}
	return icapi.Ok
}

func (srv *Server) GetNumberOfAddData(addr string, timeout int32, n *uint32) icapi.Status {
	c, _, st := srv.current(addr)
	if st != icapi.Ok {
		return st
	}
	keys, _ := channels(c)
	*n = uint32(len(keys))
	return icapi.Ok
}

func (srv *Server) GetAddDataNameByIndex(addr string, i int32, name []byte) icapi.Status {
	c, _, st := srv.current(addr)
	if st != icapi.Ok {
		return st
	}
	keys, _ := channels(c)
	if i < 0 || int(i) >= len(keys) {
		srv.msg.Printf("add-data index %d out of range [0, %d)", i, len(keys))
		return icapi.Error
	}
	_, err := lv.EncodeFixed(name, keys[i])
	if err != nil {
		return icapi.Error
	}
	return icapi.Ok
}

func (srv *Server) GetAddDataNamesAsJson(addr string, names []byte) icapi.Status {
	c, _, st := srv.current(addr)
	if st != icapi.Ok {
		return st
	}
	keys, _ := channels(c)
	if keys == nil {
		keys = []string{}
	}
	err := icapi.MarshalText(names, keys)
	if err != nil {
		srv.msg.Printf("%+v", err)
		return icapi.Error
	}
	return icapi.Ok
}

func (inst *Instrument) errorCodes() []int32 {
	codes := make([]int32, 0, len(inst.Errors))
	for code := range inst.Errors {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

func (srv *Server) GetErrorCodes(addr string, codes []int32) icapi.Status {
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		for i := range codes {
			codes[i] = 0
		}
		copy(codes, inst.errorCodes())
		return icapi.Ok
	})
}

func (srv *Server) GetErrorInfos(addr string, infos **lv.Handle) icapi.Status {
	return srv.with(addr, func(inst *Instrument) icapi.Status {
		codes := inst.errorCodes()
		txts := make([]string, len(codes))
		for i, code := range codes {
			txts[i] = fmt.Sprintf("%d: %s", code, inst.Errors[code])
		}
		err := srv.strings(infos, txts)
		if err != nil {
			srv.msg.Printf("could not store error infos: %+v", err)
			return icapi.Error
		}
		return icapi.Ok
	})
}
