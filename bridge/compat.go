// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-lpc/ionitof/icapi"
	"github.com/go-lpc/ionitof/lv"
)

// Legacy fixed-buffer and JSON surfaces.
// They share the conversions of their dynamic counterparts and yield the
// same values for the same instrument state.

// NumberOfPeaksOld is the legacy form of NumberOfPeaks.
func (c *Client) NumberOfPeaksOld(addr string) (int, error) {
	return c.numberOfPeaks("GetNumberOfPeaksOld", addr, c.lib.GetNumberOfPeaksOld)
}

// MassesOld is the legacy form of Masses.
func (c *Client) MassesOld(addr string) ([]float32, error) {
	return c.masses(addr, c.lib.GetNumberOfPeaksOld, c.lib.GetTraceMassesOld)
}

// SetMassesOld is the legacy form of SetMasses.
func (c *Client) SetMassesOld(addr string, masses []float32) error {
	return check("SetTraceMassesOld", addr, c.lib.SetTraceMassesOld(addr, masses))
}

// CurrentSpectrumOld is the legacy form of CurrentSpectrum.
func (c *Client) CurrentSpectrumOld(addr string) (Spectrum, error) {
	return c.currentSpectrum("GetCurrentSpecOld", addr, c.lib.GetCurrentSpecOld)
}

// ConvertTiming unpacks the absolute and relative times of a legacy
// single-precision timing record.
func (c *Client) ConvertTiming(sgl []float32) (icapi.TimingInfo, error) {
	var ti icapi.TimingInfo
	err := check("ConvertTimingInfo", "", c.lib.ConvertTimingInfo(sgl, &ti))
	return ti, err
}

// FullCycleJSON is the JSON form of FullCycle.
func (c *Client) FullCycleJSON(addr string, since uint32, timeout time.Duration) (FullCycle, error) {
	var (
		buf = make([]byte, c.jsonbuf)
		ovr = since
		doc icapi.FullCycleDoc
	)
	st := c.lib.GetFullCycleDataJson(addr, c.ms(timeout), &ovr, buf)
	if st == icapi.Error {
		return FullCycle{}, check("GetFullCycleDataJson", addr, st)
	}
	err := icapi.UnmarshalText(buf, &doc)
	if err != nil {
		return FullCycle{}, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	fc, err := fullCycleOf(doc)
	if err != nil {
		return FullCycle{}, err
	}
	return fc, check("GetFullCycleDataJson", addr, st)
}

// JSON returns a cursor delivering the full cycles through their
// JSON form.
func (cur *Cursor) JSON() *Cursor {
	cur.json = true
	return cur
}

// ConcInfoJSON is the JSON form of ConcInfo.
func (c *Client) ConcInfoJSON(addr string) (ConcInfo, error) {
	buf := make([]byte, c.jsonbuf)
	err := check("GetConcInfoJson", addr, c.lib.GetConcInfoJson(addr, c.ms(0), buf))
	if err != nil {
		return ConcInfo{}, err
	}
	var doc icapi.ConcInfoDoc
	err = icapi.UnmarshalText(buf, &doc)
	if err != nil {
		return ConcInfo{}, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return concInfoOf(doc)
}

// ParametersJSON is the JSON form of Parameters.
func (c *Client) ParametersJSON(addr string) ([]Param, error) {
	var (
		buf     = make([]byte, c.jsonbuf)
		values  = make([]float32, MaxParams)
		indices = make([]int32, MaxParams)
		names   []string
	)
	err := check("GetParametersAsJson", addr, c.lib.GetParametersAsJson(addr, buf, values, indices))
	if err != nil {
		return nil, err
	}
	err = icapi.UnmarshalText(buf, &names)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if names == nil {
		names = []string{}
	}
	return zipTable(names, values, indices)
}

// SetParametersJSON is the JSON form of SetParameters.
func (c *Client) SetParametersJSON(addr string, ps []Param) error {
	docs := make([]icapi.ParamDoc, len(ps))
	for i, p := range ps {
		docs[i] = icapi.ParamDoc{Name: p.Name, Index: p.Index, Value: p.Value}
	}
	buf := make([]byte, c.jsonbuf)
	err := icapi.MarshalText(buf, docs)
	if err != nil {
		return err
	}
	return check("SetParametersAsJson", addr, c.lib.SetParametersAsJson(addr, buf))
}

// AddDataNamesJSON is the JSON form of AddDataNames.
func (c *Client) AddDataNamesJSON(addr string) ([]string, error) {
	buf := make([]byte, c.jsonbuf)
	err := check("GetAddDataNamesAsJson", addr, c.lib.GetAddDataNamesAsJson(addr, buf))
	if err != nil {
		return nil, err
	}
	names := []string{}
	err = icapi.UnmarshalText(buf, &names)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return names, nil
}

// SetDescriptionText is the text-list form of SetDescription.
func (src *Source) SetDescriptionText(desc []string) error {
	buf, err := textList(desc)
	if err != nil {
		return err
	}
	return check("AddSetDescriptionAsByte", src.name, src.c.lib.AddSetDescriptionAsByte(src.name, buf))
}

// SetUnitsText is the text-list form of SetUnits.
func (src *Source) SetUnitsText(units []string) error {
	buf, err := textList(units)
	if err != nil {
		return err
	}
	return check("AddSetUnitAsByte", src.name, src.c.lib.AddSetUnitAsByte(src.name, buf))
}

func textList(vs []string) ([]byte, error) {
	for _, v := range vs {
		if strings.ContainsRune(v, icapi.ByteSep) {
			return nil, fmt.Errorf("bridge: entry %q holds a list separator", v)
		}
	}
	raw, err := lv.Encode(strings.Join(vs, string(icapi.ByteSep)))
	if err != nil {
		return nil, err
	}
	return append(raw, 0), nil
}
