// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/go-lpc/ionitof/cycledb"
	"go-hep.org/x/hep/lcio"
)

// Writer writes full cycles to an LCIO stream.
type Writer struct {
	w   *lcio.Writer
	msg *log.Logger

	run int
	n   int
}

// NewWriter returns a new writer of full cycles to w.
func NewWriter(w *lcio.Writer, msg *log.Logger) *Writer {
	return &Writer{w: w, msg: msg, run: -1}
}

// Write writes c as an LCIO event, preceded by a run header whenever the
// run changes.
func (w *Writer) Write(c cycledb.Cycle) error {
	if w.n%100 == 0 {
		w.msg.Printf("processing cycle %d...", c.Overall)
	}
	w.n++

	if c.Run != w.run {
		err := w.w.WriteRunHeader(&lcio.RunHeader{
			RunNumber: int32(c.Run),
			Detector:  detector,
			Params: lcio.Params{
				Strings: map[string][]string{
					"Addr": {c.Addr},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("could not write run header: %w", err)
		}
		w.run = c.Run
	}

	evt := lcio.Event{
		RunNumber:   int32(c.Run),
		EventNumber: c.Overall,
		TimeStamp:   c.Time.UnixNano(),
		Detector:    detector,
		Params: lcio.Params{
			Ints: map[string][]int32{
				"Cycle": {c.Cycle},
			},
			Strings: map[string][]string{
				"Addr": {c.Addr},
			},
		},
	}
	evt.Add(flatName, &lcio.GenericObject{
		Data: []lcio.GenericObjectData{{I32s: i32sFrom(c.Flat)}},
	})

	if len(c.AddData) > 0 {
		var (
			descs  = make([]string, len(c.AddData))
			groups = make([]string, len(c.AddData))
			units  = make([]string, len(c.AddData))
			obj    = &lcio.GenericObject{
				Data: make([]lcio.GenericObjectData, len(c.AddData)),
			}
		)
		for i, ch := range c.AddData {
			descs[i] = ch.Description
			groups[i] = ch.Group
			units[i] = ch.Unit
			obj.Data[i].F32s = []float32{ch.Value}
		}
		evt.Params.Strings["AddData"] = descs
		evt.Params.Strings["AddDataGroup"] = groups
		evt.Params.Strings["AddDataUnit"] = units
		evt.Add(addDataName, obj)
	}

	err := w.w.WriteEvent(&evt)
	if err != nil {
		return fmt.Errorf("could not write cycle %d: %w", c.Overall, err)
	}

	return nil
}

// i32sFrom packs raw into int32 words, prefixed with the length of raw.
func i32sFrom(raw []byte) []int32 {
	const i32sz = 4

	n := (len(raw) + i32sz - 1) / i32sz
	out := make([]int32, 1+n)
	out[0] = int32(len(raw))

	buf := make([]byte, n*i32sz)
	copy(buf, raw)
	for i := range n {
		out[1+i] = int32(binary.LittleEndian.Uint32(buf[i*i32sz:]))
	}
	return out
}
