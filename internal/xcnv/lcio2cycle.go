// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-lpc/ionitof/bridge"
	"github.com/go-lpc/ionitof/cycledb"
	"go-hep.org/x/hep/lcio"
)

// ReadCycles reads all the full cycles from r and hands them to f.
func ReadCycles(r *lcio.Reader, f func(c cycledb.Cycle) error) error {
	for r.Next() {
		c, err := cycleFrom(r.Event())
		if err != nil {
			return err
		}
		err = f(c)
		if err != nil {
			return err
		}
	}

	if err := r.Err(); err != nil {
		return fmt.Errorf("could not read LCIO event: %w", err)
	}

	return nil
}

func cycleFrom(evt lcio.Event) (cycledb.Cycle, error) {
	c := cycledb.Cycle{
		Overall: evt.EventNumber,
		Run:     int(evt.RunNumber),
		Time:    time.Unix(0, evt.TimeStamp).UTC(),
	}
	if v := evt.Params.Strings["Addr"]; len(v) > 0 {
		c.Addr = v[0]
	}
	if v := evt.Params.Ints["Cycle"]; len(v) > 0 {
		c.Cycle = v[0]
	}

	if !evt.Has(flatName) {
		return c, fmt.Errorf("cycle %d has no %q collection", c.Overall, flatName)
	}
	flat, ok := evt.Get(flatName).(*lcio.GenericObject)
	if !ok || len(flat.Data) != 1 {
		return c, fmt.Errorf("cycle %d has an invalid %q collection", c.Overall, flatName)
	}
	raw, err := bytesFrom(flat.Data[0].I32s)
	if err != nil {
		return c, fmt.Errorf("cycle %d has an invalid %q collection: %w", c.Overall, flatName, err)
	}
	c.Flat = raw

	if !evt.Has(addDataName) {
		return c, nil
	}
	obj, ok := evt.Get(addDataName).(*lcio.GenericObject)
	if !ok {
		return c, fmt.Errorf("cycle %d has an invalid %q collection", c.Overall, addDataName)
	}
	var (
		descs  = evt.Params.Strings["AddData"]
		groups = evt.Params.Strings["AddDataGroup"]
		units  = evt.Params.Strings["AddDataUnit"]
	)
	n := len(obj.Data)
	if len(descs) != n || len(groups) != n || len(units) != n {
		return c, fmt.Errorf("cycle %d has inconsistent add-data channels", c.Overall)
	}
	c.AddData = make([]bridge.AddDataChannel, n)
	for i, data := range obj.Data {
		ch := bridge.AddDataChannel{
			Description: descs[i],
			Group:       groups[i],
			Unit:        units[i],
		}
		if len(data.F32s) > 0 {
			ch.Value = data.F32s[0]
		}
		c.AddData[i] = ch
	}

	return c, nil
}

func bytesFrom(raw []int32) ([]byte, error) {
	const i32sz = 4

	if len(raw) == 0 {
		return nil, fmt.Errorf("missing payload length")
	}
	n := int(raw[0])
	if n < 0 || n > (len(raw)-1)*i32sz {
		return nil, fmt.Errorf("invalid payload length %d", n)
	}

	buf := make([]byte, (len(raw)-1)*i32sz)
	for i, v := range raw[1:] {
		binary.LittleEndian.PutUint32(buf[i*i32sz:], uint32(v))
	}
	return buf[:n], nil
}
