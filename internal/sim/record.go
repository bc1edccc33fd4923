// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"fmt"

	"github.com/go-lpc/ionitof/icapi"
	"github.com/go-lpc/ionitof/lv"
)

type filler struct {
	err error
}

func (w *filler) f32s(rec lv.Record, name string, vs []float32) {
	if w.err != nil {
		return
	}
	h, err := rec.Alloc(name, len(vs))
	if err != nil {
		w.err = err
		return
	}
	copy(h.Float32s(), vs)
}

func (w *filler) f64s(rec lv.Record, name string, vs []float64) {
	if w.err != nil {
		return
	}
	h, err := rec.Alloc(name, len(vs))
	if err != nil {
		w.err = err
		return
	}
	copy(h.Float64s(), vs)
}

func (w *filler) row(rec lv.Record, name string, vs []float32) {
	if w.err != nil {
		return
	}
	rows := 1
	if len(vs) == 0 {
		rows = 0
	}
	h, err := rec.Alloc(name, rows, len(vs))
	if err != nil {
		w.err = err
		return
	}
	copy(h.Float32s(), vs)
}

func (w *filler) empty2D(rec lv.Record, name string) {
	if w.err != nil {
		return
	}
	_, w.err = rec.Alloc(name, 0, 0)
}

func (w *filler) strs(rec lv.Record, name string, vs []string) {
	if w.err != nil {
		return
	}
	h, err := rec.Alloc(name, 0)
	if err != nil {
		w.err = err
		return
	}
	w.err = h.SetStrings(vs)
}

func (w *filler) text(rec lv.Record, name, v string) {
	if w.err != nil {
		return
	}
	w.err = rec.SetText(name, v)
}

func (w *filler) bools(rec lv.Record, name string, vs []bool) {
	if w.err != nil {
		return
	}
	h, err := rec.Alloc(name, 0)
	if err != nil {
		w.err = err
		return
	}
	w.err = h.SetBools(vs)
}

func (w *filler) records(rec lv.Record, name string, n int) *lv.Handle {
	if w.err != nil {
		return nil
	}
	h, err := rec.Alloc(name, n)
	if err != nil {
		w.err = err
		return nil
	}
	return h
}

// putFullCycle stores the cycle c into the full-cycle record rec.
func putFullCycle(rec lv.Record, c Cycle, masses []float32) error {
	if rec.Layout() != icapi.FullCycleLayout {
		return fmt.Errorf("sim: invalid full-cycle layout %q", rec.Layout().Name())
	}
	var (
		w     filler
		spec  = rec.Inline("SpecData")
		trace = rec.Inline("TraceData")
		mcal  = rec.Inline("MassCal")
		gps   = rec.Inline("GPSData")
		gga   = gps.Inline("GGA")
	)

	icapi.PutTimeCycle(spec.Inline("TimeCycle"), c.Timing)
	w.f32s(spec, "Spectrum", c.Spectrum)
	w.f32s(spec, "SumIntensities", c.SumInty)
	w.empty2D(spec, "MonitorPeaks")

	icapi.PutTimeCycle(trace.Inline("TimeCycle"), c.Timing)
	w.row(trace, "RawTraces", c.Raw)
	w.f32s(trace, "SumRaw", c.Raw)
	w.f32s(trace, "SumCorr", c.Corr)
	w.f32s(trace, "SumConc", c.Conc)
	w.f32s(trace, "CalcTraces", nil)
	w.strs(trace, "CalcTracesNames", nil)
	w.f32s(trace, "PeakCenters", masses)
	if add := w.records(trace, "AddDataQ", len(c.AddData)); add != nil {
		for i, doc := range c.AddData {
			grp := add.Record(i)
			w.text(grp, "GroupName", doc.GroupName)
			w.strs(grp, "Desc", doc.Desc)
			w.strs(grp, "Units", doc.Units)
			w.f32s(grp, "Data", doc.Data)
			w.bools(grp, "View", doc.View)
		}
	}

	w.f64s(mcal, "Mass", nil)
	w.f64s(mcal, "Tbin", nil)
	w.f64s(mcal, "CalPara", c.CalPara)
	if w.err == nil {
		_, w.err = mcal.Alloc("SegmentCalPars", 0, 0)
	}
	mcal.SetInt16("Mode", 0)

	gps.SetUint16("State", uint16(c.GPS.State))
	w.text(gga, "UTC", c.GPS.UTC)
	gga.SetFloat32("Lat", c.GPS.Lat)
	gga.SetFloat32("Lon", c.GPS.Lon)
	gga.SetFloat32("AltMSL", c.GPS.AltMSL)
	gga.SetInt32("SVsUsed", c.GPS.SVsUsed)

	icapi.PutAutomation(rec.Inline("Automation"), c.Automation)

	if w.err != nil {
		return fmt.Errorf("sim: could not fill full-cycle record: %w", w.err)
	}
	return nil
}

func fullCycleDoc(c Cycle, masses []float32) icapi.FullCycleDoc {
	doc := icapi.FullCycleDoc{
		TimeCycle:  c.Timing,
		Spectrum:   c.Spectrum,
		SumInty:    c.SumInty,
		Raw:        c.Raw,
		Corr:       c.Corr,
		Conc:       c.Conc,
		Masses:     masses,
		AddData:    c.AddData,
		CalPara:    c.CalPara,
		Automation: c.Automation,
		GPS:        c.GPS,
	}
	if doc.AddData == nil {
		doc.AddData = []icapi.AddDataDoc{}
	}
	return doc
}

// putConcInfo stores doc into the conc-info record rec.
func putConcInfo(rec lv.Record, doc icapi.ConcInfoDoc) error {
	if rec.Layout() != icapi.ConcInfoLayout {
		return fmt.Errorf("sim: invalid conc-info layout %q", rec.Layout().Name())
	}
	var (
		w   filler
		v   = doc.DataElement.Value
		pis = rec.Inline("PISets")
		pre = rec.Inline("Presets")
		tss = rec.Inline("TransSets")
	)
	w.text(rec, "InstModeAndParas", v.InstModeAndParas)

	pis.SetUint8("Last", v.PISets.Last)
	pis.SetUint8("Current", v.PISets.Current)
	if sets := w.records(pis, "Sets", len(v.PISets.Sets)); sets != nil {
		for i, set := range v.PISets.Sets {
			r := sets.Record(i)
			w.text(r, "SettingName", set.Name)
			w.f32s(r, "Masses", set.Masses)
			w.f32s(r, "Multiplier", set.Multiplier)
		}
	}

	pre.SetInt32("CurrIdx", v.Presets.CurrIdx)
	w.strs(pre, "Names", v.Presets.Names)

	tss.SetUint8("Last", v.TransSets.Last)
	tss.SetUint8("Current", v.TransSets.Current)
	if sets := w.records(tss, "Sets", len(v.TransSets.Sets)); sets != nil {
		for i, set := range v.TransSets.Sets {
			r := sets.Record(i)
			w.text(r, "Name", set.Name)
			r.SetInt16("Voltage", set.Voltage)
			w.f32s(r, "Mass", set.Mass)
			w.f32s(r, "Trans", set.Value)
		}
	}

	if w.err != nil {
		return fmt.Errorf("sim: could not fill conc-info record: %w", w.err)
	}
	return nil
}
