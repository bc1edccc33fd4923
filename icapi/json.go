// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package icapi

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-lpc/ionitof/lv"
)

// ParamDoc is the JSON form of a named instrument parameter.
type ParamDoc struct {
	Name  string  `json:"name"`
	Index int32   `json:"index"`
	Value float32 `json:"value"`
}

// AddDataDoc is the JSON form of a group of add-data channels.
type AddDataDoc struct {
	GroupName string    `json:"GroupName"`
	Desc      []string  `json:"Desc"`
	Units     []string  `json:"Units"`
	Data      []float32 `json:"Data"`
	View      []bool    `json:"View"`
}

// FullCycleDoc is the JSON form of a full-cycle record.
type FullCycleDoc struct {
	TimeCycle  TimeCycle    `json:"TimeCycle"`
	Spectrum   []float32    `json:"Spectrum"`
	SumInty    []float32    `json:"SumIntensities"`
	Raw        []float32    `json:"raw"`
	Corr       []float32    `json:"corr"`
	Conc       []float32    `json:"conc"`
	Masses     []float32    `json:"masses"`
	AddData    []AddDataDoc `json:"AddData"`
	CalPara    []float64    `json:"CalPara"`
	Automation Automation   `json:"Automation"`
	GPS        GPSDoc       `json:"GPS"`
}

// GPSDoc is the JSON form of the GPS record.
type GPSDoc struct {
	State   GPSState `json:"State"`
	UTC     string   `json:"UTC"`
	Lat     float32  `json:"Lat"`
	Lon     float32  `json:"Lon"`
	AltMSL  float32  `json:"AltMSL"`
	SVsUsed int32    `json:"SVsUsed"`
}

// ConcInfoDoc is the JSON form of the concentration-calculation settings.
type ConcInfoDoc struct {
	DataElement struct {
		Value ConcInfoValue `json:"Value"`
	} `json:"DataElement"`
}

type ConcInfoValue struct {
	InstModeAndParas string `json:"InstModeAndParas"`
	PISets           struct {
		Last    uint8      `json:"Last"`
		Current uint8      `json:"Current"`
		Sets    []PISetDoc `json:"PiSets"`
	} `json:"PISets"`
	Presets struct {
		CurrIdx int32    `json:"CurrIdx"`
		Names   []string `json:"Names"`
	} `json:"Presets"`
	TransSets struct {
		Last    uint8         `json:"Last"`
		Current uint8         `json:"Current"`
		Sets    []TransSetDoc `json:"Transsets"`
	} `json:"TransSets"`
}

type PISetDoc struct {
	Name       string    `json:"PriIonSetName"`
	Masses     []float32 `json:"PriIonSetMasses"`
	Multiplier []float32 `json:"PriIonSetMultiplier"`
}

type TransSetDoc struct {
	Name    string    `json:"Name"`
	Voltage int16     `json:"Voltage"`
	Mass    []float32 `json:"Mass"`
	Value   []float32 `json:"Value"`
}

// MarshalText encodes v as JSON into the fixed-capacity buffer dst.
// The text is NUL-terminated when it is shorter than dst.
func MarshalText(dst []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("icapi: could not marshal %T: %w", v, err)
	}
	if len(raw) > len(dst) {
		return fmt.Errorf("icapi: JSON document too large (%d > %d bytes)", len(raw), len(dst))
	}
	n := copy(dst, raw)
	if n < len(dst) {
		dst[n] = 0
	}
	return nil
}

// UnmarshalText decodes the NUL-terminated JSON text held in buf into v.
func UnmarshalText(buf []byte, v any) error {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	err := json.Unmarshal(buf, v)
	if err != nil {
		return fmt.Errorf("icapi: could not unmarshal %T: %w", v, err)
	}
	return nil
}

// AddDataDocOf returns the JSON form of the add-data record rec.
func AddDataDocOf(rec lv.Record) AddDataDoc {
	doc := AddDataDoc{
		GroupName: rec.Text("GroupName"),
		Desc:      []string{},
		Units:     []string{},
		Data:      []float32{},
		View:      []bool{},
	}
	if h := rec.Handle("Desc"); h != nil {
		doc.Desc = h.Strings()
	}
	if h := rec.Handle("Units"); h != nil {
		doc.Units = h.Strings()
	}
	if h := rec.Handle("Data"); h != nil {
		doc.Data = append(doc.Data, h.Float32s()...)
	}
	if h := rec.Handle("View"); h != nil {
		doc.View = h.Bools()
	}
	return doc
}

// FullCycleDocOf returns the JSON form of the full-cycle record rec.
func FullCycleDocOf(rec lv.Record) FullCycleDoc {
	var (
		spec  = rec.Inline("SpecData")
		trace = rec.Inline("TraceData")
		mcal  = rec.Inline("MassCal")
		gps   = rec.Inline("GPSData")
		gga   = gps.Inline("GGA")
	)
	doc := FullCycleDoc{
		TimeCycle:  GetTimeCycle(spec.Inline("TimeCycle")),
		Spectrum:   f32s(spec.Handle("Spectrum")),
		SumInty:    f32s(spec.Handle("SumIntensities")),
		Raw:        f32s(trace.Handle("SumRaw")),
		Corr:       f32s(trace.Handle("SumCorr")),
		Conc:       f32s(trace.Handle("SumConc")),
		Masses:     f32s(trace.Handle("PeakCenters")),
		AddData:    []AddDataDoc{},
		CalPara:    []float64{},
		Automation: GetAutomation(rec.Inline("Automation")),
		GPS: GPSDoc{
			State:   GPSState(gps.Uint16("State")),
			UTC:     gga.Text("UTC"),
			Lat:     gga.Float32("Lat"),
			Lon:     gga.Float32("Lon"),
			AltMSL:  gga.Float32("AltMSL"),
			SVsUsed: gga.Int32("SVsUsed"),
		},
	}
	if h := mcal.Handle("CalPara"); h != nil {
		doc.CalPara = append(doc.CalPara, h.Float64s()...)
	}
	if h := trace.Handle("AddDataQ"); h != nil {
		for i := 0; i < h.Len(); i++ {
			doc.AddData = append(doc.AddData, AddDataDocOf(h.Record(i)))
		}
	}
	return doc
}

// ConcInfoDocOf returns the JSON form of the conc-info record rec.
func ConcInfoDocOf(rec lv.Record) ConcInfoDoc {
	var doc ConcInfoDoc
	v := &doc.DataElement.Value
	v.InstModeAndParas = rec.Text("InstModeAndParas")

	pis := rec.Inline("PISets")
	v.PISets.Last = pis.Uint8("Last")
	v.PISets.Current = pis.Uint8("Current")
	v.PISets.Sets = []PISetDoc{}
	if h := pis.Handle("Sets"); h != nil {
		for i := 0; i < h.Len(); i++ {
			set := h.Record(i)
			v.PISets.Sets = append(v.PISets.Sets, PISetDoc{
				Name:       set.Text("SettingName"),
				Masses:     f32s(set.Handle("Masses")),
				Multiplier: f32s(set.Handle("Multiplier")),
			})
		}
	}

	pre := rec.Inline("Presets")
	v.Presets.CurrIdx = pre.Int32("CurrIdx")
	v.Presets.Names = []string{}
	if h := pre.Handle("Names"); h != nil {
		v.Presets.Names = h.Strings()
	}

	tss := rec.Inline("TransSets")
	v.TransSets.Last = tss.Uint8("Last")
	v.TransSets.Current = tss.Uint8("Current")
	v.TransSets.Sets = []TransSetDoc{}
	if h := tss.Handle("Sets"); h != nil {
		for i := 0; i < h.Len(); i++ {
			set := h.Record(i)
			v.TransSets.Sets = append(v.TransSets.Sets, TransSetDoc{
				Name:    set.Text("Name"),
				Voltage: set.Int16("Voltage"),
				Mass:    f32s(set.Handle("Mass")),
				Value:   f32s(set.Handle("Trans")),
			})
		}
	}
	return doc
}

func f32s(h *lv.Handle) []float32 {
	if h == nil {
		return []float32{}
	}
	return append([]float32{}, h.Float32s()...)
}
