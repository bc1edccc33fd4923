// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"fmt"
	"math"
	"strconv"

	"github.com/go-lpc/ionitof/icapi"
	"github.com/go-lpc/ionitof/lv"
)

// ZipAddData zips the parallel description, unit and value arrays of an
// add-data group into channels.
func ZipAddData(group string, desc, units []string, data []float32) ([]AddDataChannel, error) {
	err := checkShape("add-data "+strconv.Quote(group)+" desc/unit/data", len(desc), len(units), len(data))
	if err != nil {
		return nil, err
	}
	chans := make([]AddDataChannel, len(data))
	for i := range chans {
		chans[i] = AddDataChannel{
			Description: desc[i],
			Group:       group,
			Unit:        units[i],
			Value:       data[i],
		}
	}
	return chans, nil
}

// ZipParams zips the parallel name, value and index arrays of a
// parameter table.
func ZipParams(names []string, values []float32, indices []int32) ([]Param, error) {
	err := checkShape("parameter name/value/index", len(names), len(values), len(indices))
	if err != nil {
		return nil, err
	}
	ps := make([]Param, len(names))
	for i := range ps {
		ps[i] = Param{Name: names[i], Index: indices[i], Value: values[i]}
	}
	return ps, nil
}

func fullCycleOf(doc icapi.FullCycleDoc) (FullCycle, error) {
	fc := FullCycle{
		Timing:         doc.TimeCycle.Timing(),
		Run:            int(doc.TimeCycle.Run),
		CntsPerExtract: doc.TimeCycle.CntsPerExtract,
		Spectrum:       nonil(doc.Spectrum),
		SumIntensities: nonil(doc.SumInty),
		Traces: Traces{
			Raw:  nonil(doc.Raw),
			Corr: nonil(doc.Corr),
			Conc: nonil(doc.Conc),
		},
		Masses:     nonil(doc.Masses),
		AddData:    []AddDataChannel{},
		CalPara:    append([]float64{}, doc.CalPara...),
		Automation: doc.Automation,
		GPS: GPS{
			State:   doc.GPS.State,
			UTC:     doc.GPS.UTC,
			Lat:     doc.GPS.Lat,
			Lon:     doc.GPS.Lon,
			AltMSL:  doc.GPS.AltMSL,
			SVsUsed: doc.GPS.SVsUsed,
		},
	}
	for _, grp := range doc.AddData {
		chans, err := ZipAddData(grp.GroupName, grp.Desc, grp.Units, grp.Data)
		if err != nil {
			return fc, err
		}
		fc.AddData = append(fc.AddData, chans...)
	}
	return fc, nil
}

func concInfoOf(doc icapi.ConcInfoDoc) (ConcInfo, error) {
	v := doc.DataElement.Value
	ci := ConcInfo{
		Mode:          v.InstModeAndParas,
		PrimaryIons:   []PrimaryIon{},
		CurrentPI:     int(v.PISets.Current),
		Presets:       append([]string{}, v.Presets.Names...),
		CurrentPreset: int(v.Presets.CurrIdx),
		Transmissions: []Transmission{},
		CurrentTrans:  int(v.TransSets.Current),
	}

	// the tables are padded with unnamed entries.
	for _, set := range v.PISets.Sets {
		if set.Name == "" {
			break
		}
		err := checkShape("primary ion "+strconv.Quote(set.Name)+" mass/multiplier", len(set.Masses), len(set.Multiplier))
		if err != nil {
			return ci, err
		}
		pi := PrimaryIon{Name: set.Name, Masses: []float32{}, Multipliers: []float32{}}
		for i, m := range set.Masses {
			if m <= 0 {
				continue
			}
			pi.Masses = append(pi.Masses, m)
			pi.Multipliers = append(pi.Multipliers, set.Multiplier[i])
		}
		ci.PrimaryIons = append(ci.PrimaryIons, pi)
	}

	for _, set := range v.TransSets.Sets {
		if set.Name == "" {
			break
		}
		err := checkShape("transmission "+strconv.Quote(set.Name)+" mass/value", len(set.Mass), len(set.Value))
		if err != nil {
			return ci, err
		}
		tr := Transmission{Name: set.Name, Voltage: set.Voltage, Masses: []float32{}, Values: []float32{}}
		for i, m := range set.Mass {
			if m <= 0 {
				continue
			}
			tr.Masses = append(tr.Masses, m)
			tr.Values = append(tr.Values, set.Value[i])
		}
		ci.Transmissions = append(ci.Transmissions, tr)
	}
	return ci, nil
}

// ptrTable converts the rows of a PTR data table.
func ptrTable(tbl *lv.Handle) ([]PTRParam, error) {
	if tbl == nil {
		return []PTRParam{}, nil
	}
	dims := tbl.Dims()
	if dims[0] == 0 {
		return []PTRParam{}, nil
	}
	err := checkShape("PTR table columns", dims[1], icapi.NumPTRFields)
	if err != nil {
		return nil, err
	}

	var (
		cells = tbl.Strings()
		rows  = make([]PTRParam, dims[0])
	)
	for i := range rows {
		row := cells[i*dims[1] : (i+1)*dims[1]]
		idx, err := strconv.Atoi(row[icapi.PTRIndex])
		if err != nil {
			return nil, fmt.Errorf("%w: invalid PTR index %q: %w", ErrProtocol, row[icapi.PTRIndex], err)
		}
		set, err := parseFloat(row[icapi.PTRSet])
		if err != nil {
			return nil, err
		}
		act, err := parseFloat(row[icapi.PTRAct])
		if err != nil {
			return nil, err
		}
		ts, err := parseFloat(row[icapi.PTRTime])
		if err != nil {
			return nil, err
		}
		rows[i] = PTRParam{
			Name:    row[icapi.PTRName],
			Index:   idx,
			AltName: row[icapi.PTRAltName],
			Set:     set,
			Act:     act,
			Unit:    row[icapi.PTRUnit],
			Time:    icapi.TimingInfo{AbsTime: ts}.Time(),
		}
	}
	return rows, nil
}

// ptrCells returns the row-major cells of the PTR data table holding rows.
func ptrCells(rows []PTRParam) []string {
	cells := make([]string, 0, len(rows)*icapi.NumPTRFields)
	for _, p := range rows {
		row := make([]string, icapi.NumPTRFields)
		row[icapi.PTRName] = p.Name
		row[icapi.PTRIndex] = strconv.Itoa(p.Index)
		row[icapi.PTRAltName] = p.AltName
		row[icapi.PTRSet] = formatFloat(p.Set)
		row[icapi.PTRAct] = formatFloat(p.Act)
		row[icapi.PTRUnit] = p.Unit
		if !p.Time.IsZero() {
			row[icapi.PTRTime] = strconv.FormatFloat(icapi.AbsTime(p.Time), 'f', 3, 64)
		}
		cells = append(cells, row...)
	}
	return cells
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloat(txt string) (float64, error) {
	if txt == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(txt, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid PTR value %q: %w", ErrProtocol, txt, err)
	}
	return v, nil
}

func nonil[T any](vs []T) []T {
	return append([]T{}, vs...)
}
