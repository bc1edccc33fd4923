// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"fmt"

	"github.com/go-lpc/ionitof/icapi"
	"github.com/go-lpc/ionitof/lv"
)

// AddDataNames returns the names of the add-data channels.
// The set of channels may change between connections.
func (c *Client) AddDataNames(addr string) ([]string, error) {
	var names []string
	err := c.mem.With(func(s *lv.Scope) error {
		slot := s.Slot()
		err := check("GetAddDataNames", addr, c.lib.GetAddDataNames(addr, slot))
		if err != nil {
			return err
		}
		names = []string{}
		if *slot != nil {
			names = (*slot).Strings()
		}
		return nil
	})
	return names, err
}

// AddDataValues returns the values of the add-data channels and their
// absolute time.
func (c *Client) AddDataValues(addr string) ([]float32, float64, error) {
	n, err := c.NumberOfAddData(addr)
	if err != nil {
		return nil, 0, err
	}
	var (
		vs = make([]float32, n)
		t  float64
	)
	err = check("GetAddDataValues", addr, c.lib.GetAddDataValues(addr, vs, &t))
	if err != nil {
		return nil, 0, err
	}
	return vs, t, nil
}

// NumberOfAddData returns the number of add-data channels.
func (c *Client) NumberOfAddData(addr string) (int, error) {
	var n uint32
	// the timeout of this call is ignored by the library.
	err := check("GetNumberOfAddData", addr, c.lib.GetNumberOfAddData(addr, c.ms(0), &n))
	return int(n), err
}

// AddDataName returns the name of the i-th add-data channel.
func (c *Client) AddDataName(addr string, i int) (string, error) {
	buf := make([]byte, icapi.MaxPath)
	err := check("GetAddDataNameByIndex", addr, c.lib.GetAddDataNameByIndex(addr, int32(i), buf))
	if err != nil {
		return "", err
	}
	return lv.DecodeFixed(buf, len(buf)), nil
}

// AddData returns the add-data channels of the current cycle.
func (c *Client) AddData(addr string) ([]AddDataChannel, error) {
	fc, err := c.FullCycle(addr, 0, 0)
	if err != nil {
		return nil, err
	}
	return fc.AddData, nil
}

// ErrorCodes returns the error codes currently raised by the instrument.
func (c *Client) ErrorCodes(addr string) ([]int32, error) {
	codes := make([]int32, MaxErrors)
	err := check("GetErrorCodes", addr, c.lib.GetErrorCodes(addr, codes))
	if err != nil {
		return nil, err
	}
	out := codes[:0]
	for _, code := range codes {
		if code != 0 {
			out = append(out, code)
		}
	}
	return out, nil
}

// ErrorInfos returns the descriptions of the errors currently raised by
// the instrument.
func (c *Client) ErrorInfos(addr string) ([]string, error) {
	var infos []string
	err := c.mem.With(func(s *lv.Scope) error {
		slot := s.Slot()
		err := check("GetErrorInfos", addr, c.lib.GetErrorInfos(addr, slot))
		if err != nil {
			return err
		}
		infos = []string{}
		if *slot != nil {
			infos = (*slot).Strings()
		}
		return nil
	})
	return infos, err
}

// Source is an external add-data source, publishing auxiliary channels
// alongside the cycles of the instruments.
type Source struct {
	c    *Client
	name string
}

// NewSource registers a new add-data source.
func (c *Client) NewSource(name string) (*Source, error) {
	err := check("AddCheck", name, c.lib.AddCheck())
	if err != nil {
		return nil, fmt.Errorf("bridge: add-data library not available: %w", err)
	}
	err = check("AddCreate", name, c.lib.AddCreate(name))
	if err != nil {
		return nil, err
	}
	return &Source{c: c, name: name}, nil
}

// Name returns the name of the source.
func (src *Source) Name() string { return src.name }

// SetData sets the values of the channels of the source.
func (src *Source) SetData(vs []float32) error {
	return check("AddSetData", src.name, src.c.lib.AddSetData(src.name, vs))
}

// SetDescription sets the descriptions of the channels of the source.
func (src *Source) SetDescription(desc []string) error {
	return src.setStrings("AddSetDescription", desc, src.c.lib.AddSetDescription)
}

// SetUnits sets the units of the channels of the source.
func (src *Source) SetUnits(units []string) error {
	return src.setStrings("AddSetUnit", units, src.c.lib.AddSetUnit)
}

func (src *Source) setStrings(op string, vs []string, set func(string, *lv.Handle) icapi.Status) error {
	return src.c.mem.With(func(s *lv.Scope) error {
		h, err := s.Strings(vs)
		if err != nil {
			return err
		}
		return check(op, src.name, set(src.name, h))
	})
}

// Publish sets the descriptions, units and values of the channels of
// the source.
func (src *Source) Publish(chans []AddDataChannel) error {
	var (
		desc  = make([]string, len(chans))
		units = make([]string, len(chans))
		data  = make([]float32, len(chans))
	)
	for i, ch := range chans {
		desc[i] = ch.Description
		units[i] = ch.Unit
		data[i] = ch.Value
	}
	return src.Update(desc, units, data)
}

// Update sets the descriptions, units and values of the channels of the
// source. Nothing is sent when the arrays disagree in length.
func (src *Source) Update(desc, units []string, data []float32) error {
	err := checkShape("add-data "+src.name+" desc/unit/data", len(desc), len(units), len(data))
	if err != nil {
		return err
	}
	err = src.SetDescription(desc)
	if err != nil {
		return err
	}
	err = src.SetUnits(units)
	if err != nil {
		return err
	}
	return src.SetData(data)
}

// Close disposes of the source.
func (src *Source) Close() error {
	return check("AddDispose", src.name, src.c.lib.AddDispose(src.name))
}
