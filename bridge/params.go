// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"strconv"

	"github.com/go-lpc/ionitof/icapi"
	"github.com/go-lpc/ionitof/lv"
)

// assign returns the text form of the assignment of v to the named parameter.
func assign(name string, v float32) string {
	return name + ":" + strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// Parameter returns the value of the named parameter.
func (c *Client) Parameter(addr, name string) (float32, error) {
	buf, err := text(name, 0)
	if err != nil {
		return 0, err
	}
	var v float32
	err = check("GetParameter", addr, c.lib.GetParameter(addr, buf, &v))
	return v, err
}

// SetParameter sets the value of the named parameter.
func (c *Client) SetParameter(addr, name string, v float32) error {
	buf, err := text(assign(name, v), 0)
	if err != nil {
		return err
	}
	return check("SetParameter", addr, c.lib.SetParameter(addr, buf))
}

// SetParameters sets the values of the provided parameters.
// The parameters are selected by name.
func (c *Client) SetParameters(addr string, ps []Param) error {
	return c.setParameters("SetParameters", addr, ps, c.lib.SetParameters)
}

// ScheduleParameters sets the values of the provided parameters at the
// start of the next cycle.
func (c *Client) ScheduleParameters(addr string, ps []Param) error {
	return c.setParameters("SetParametersScheduled", addr, ps, c.lib.SetParametersScheduled)
}

func (c *Client) setParameters(op, addr string, ps []Param, set func(string, *lv.Handle) icapi.Status) error {
	txts := make([]string, len(ps))
	for i, p := range ps {
		txts[i] = assign(p.Name, p.Value)
	}
	return c.mem.With(func(s *lv.Scope) error {
		pars, err := s.Strings(txts)
		if err != nil {
			return err
		}
		return check(op, addr, set(addr, pars))
	})
}

// Parameters returns the parameter table of the instrument.
func (c *Client) Parameters(addr string) ([]Param, error) {
	var (
		ps      []Param
		values  = make([]float32, MaxParams)
		indices = make([]int32, MaxParams)
	)
	err := c.mem.With(func(s *lv.Scope) error {
		slot := s.Slot()
		err := check("GetParameters", addr, c.lib.GetParameters(addr, slot, values, indices))
		if err != nil {
			return err
		}
		names := []string{}
		if *slot != nil {
			names = (*slot).Strings()
		}
		ps, err = zipTable(names, values, indices)
		return err
	})
	return ps, err
}

// zipTable zips the names of a parameter table with the values and
// indices read into fixed-capacity buffers.
func zipTable(names []string, values []float32, indices []int32) ([]Param, error) {
	n := len(names)
	if n > len(values) {
		return nil, checkShape("parameter name/value/index", n, len(values), len(indices))
	}
	return ZipParams(names, values[:n], indices[:n])
}

// PTRData returns the PTR data table of the instrument.
func (c *Client) PTRData(addr string) ([]PTRParam, error) {
	var rows []PTRParam
	err := c.mem.With(func(s *lv.Scope) error {
		slot := s.Slot()
		err := check("ReadPTRData", addr, c.lib.ReadPTRData(addr, slot))
		if err != nil {
			return err
		}
		rows, err = ptrTable(*slot)
		return err
	})
	return rows, err
}

// SetPTRData writes the set values of the provided PTR data rows.
// Rows are selected by name and rows with a NaN set value are skipped.
func (c *Client) SetPTRData(addr string, rows []PTRParam) error {
	return c.mem.With(func(s *lv.Scope) error {
		tbl, err := s.Allocate2D(lv.StringRef, 0, 0)
		if err != nil {
			return err
		}
		err = tbl.SetStrings(ptrCells(rows))
		if err != nil {
			return err
		}
		err = c.mem.Resize(tbl, len(rows), icapi.NumPTRFields)
		if err != nil {
			return err
		}
		return check("WritePTRData", addr, c.lib.WritePTRData(addr, tbl))
	})
}
