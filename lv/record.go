// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lv

import (
	"errors"
	"fmt"
	"math"
)

// Record is a view of a record stored in a handle.
// Accessors panic when the named field does not exist or does not have
// the requested type.
type Record struct {
	lay   *Layout
	buf   []byte
	arena *Arena
}

func (r Record) Layout() *Layout { return r.lay }

func (r Record) field(name string, t Type) Field {
	f, ok := r.lay.Field(name)
	if !ok {
		panic(fmt.Errorf("lv: no field %q in layout %q", name, r.lay.name))
	}
	if f.Type != t {
		panic(fmt.Errorf("lv: field %q of layout %q is %v, not %v", name, r.lay.name, f.Type, t))
	}
	return f
}

func (r Record) at(name string, t Type) []byte {
	f := r.field(name, t)
	return r.buf[f.Offset : f.Offset+f.size()]
}

func (r Record) Uint8(name string) uint8 { return r.at(name, TUint8)[0] }
func (r Record) SetUint8(name string, v uint8) { r.at(name, TUint8)[0] = v }

func (r Record) Uint16(name string) uint16 { return order.Uint16(r.at(name, TUint16)) }
func (r Record) SetUint16(name string, v uint16) {
	order.PutUint16(r.at(name, TUint16), v)
}

func (r Record) Int16(name string) int16 { return int16(order.Uint16(r.at(name, TInt16))) }
func (r Record) SetInt16(name string, v int16) {
	order.PutUint16(r.at(name, TInt16), uint16(v))
}

func (r Record) Int32(name string) int32 { return int32(order.Uint32(r.at(name, TInt32))) }
func (r Record) SetInt32(name string, v int32) {
	order.PutUint32(r.at(name, TInt32), uint32(v))
}

func (r Record) Uint32(name string) uint32 { return order.Uint32(r.at(name, TUint32)) }
func (r Record) SetUint32(name string, v uint32) {
	order.PutUint32(r.at(name, TUint32), v)
}

func (r Record) Float32(name string) float32 {
	return math.Float32frombits(order.Uint32(r.at(name, TFloat32)))
}

func (r Record) SetFloat32(name string, v float32) {
	order.PutUint32(r.at(name, TFloat32), math.Float32bits(v))
}

func (r Record) Float64(name string) float64 {
	return math.Float64frombits(order.Uint64(r.at(name, TFloat64)))
}

func (r Record) SetFloat64(name string, v float64) {
	order.PutUint64(r.at(name, TFloat64), math.Float64bits(v))
}

// Inline returns a view of the nested record stored in place.
func (r Record) Inline(name string) Record {
	f := r.field(name, TInline)
	return Record{
		lay:   f.Sub,
		buf:   r.buf[f.Offset : f.Offset+f.size()],
		arena: r.arena,
	}
}

// Handle returns the handle referenced by the named member,
// or nil for a null reference.
func (r Record) Handle(name string) *Handle {
	id := uint32(order.Uint64(r.at(name, THandle)))
	return r.arena.Lookup(id)
}

// SetHandle stores h in the named member.
// The record takes ownership of h and releases the handle it previously
// referenced.
func (r Record) SetHandle(name string, h *Handle) error {
	f := r.field(name, THandle)
	if h != nil {
		if h.arena != r.arena {
			return fmt.Errorf("lv: handle %d does not belong to the record arena", h.id)
		}
		if h.kind != f.Elem || h.rank != f.Rank || (f.Elem == Cluster && h.lay != f.Sub) {
			return fmt.Errorf(
				"%w: field %q wants handle<%v/%d>, got handle<%v/%d>",
				ErrKind, name, f.Elem, f.Rank, h.kind, h.rank,
			)
		}
	}
	if old := r.Handle(name); old != nil && old != h {
		err := r.arena.Release(old)
		if err != nil {
			return fmt.Errorf("lv: could not release field %q: %w", name, err)
		}
	}
	order.PutUint64(r.at(name, THandle), uint64(h.ID()))
	return nil
}

// Alloc returns the handle of the named member, allocating it when null,
// sized with the provided dimensions.
func (r Record) Alloc(name string, dims ...int) (*Handle, error) {
	f := r.field(name, THandle)
	if len(dims) != f.Rank {
		return nil, fmt.Errorf("lv: field %q wants %d dimension(s), got %d", name, f.Rank, len(dims))
	}

	if h := r.Handle(name); h != nil {
		err := r.arena.Resize(h, dims...)
		if err != nil {
			return nil, fmt.Errorf("lv: could not resize field %q: %w", name, err)
		}
		return h, nil
	}

	var (
		h   *Handle
		err error
	)
	switch {
	case f.Elem == Cluster:
		h, err = r.arena.AllocateRecords(f.Sub, dims[0])
	case f.Rank == 2:
		h, err = r.arena.Allocate2D(f.Elem, dims[0], dims[1])
	default:
		h, err = r.arena.Allocate(f.Elem, dims[0])
	}
	if err != nil {
		return nil, fmt.Errorf("lv: could not allocate field %q: %w", name, err)
	}
	order.PutUint64(r.at(name, THandle), uint64(h.id))
	return h, nil
}

// Text decodes the named string member.
// A null string handle decodes to the empty string.
func (r Record) Text(name string) string {
	return r.Handle(name).Text()
}

// SetText encodes s into the named string member.
func (r Record) SetText(name string, s string) error {
	raw, err := Encode(s)
	if err != nil {
		return fmt.Errorf("lv: could not encode field %q: %w", name, err)
	}
	h, err := r.Alloc(name, len(raw))
	if err != nil {
		return err
	}
	copy(h.Bytes(), raw)
	return nil
}

// release releases every handle owned by the record, including the ones
// owned by its inline members.
func (r Record) release() error {
	var errs []error
	for _, f := range r.lay.fields {
		switch f.Type {
		case THandle:
			slot := r.buf[f.Offset : f.Offset+refSize]
			id := uint32(order.Uint64(slot))
			if id == 0 {
				continue
			}
			order.PutUint64(slot, 0)
			h := r.arena.Lookup(id)
			if h == nil {
				errs = append(errs, fmt.Errorf(
					"%w: field %q references handle %d", ErrReleased, f.Name, id,
				))
				continue
			}
			if err := r.arena.Release(h); err != nil {
				errs = append(errs, err)
			}
		case TInline:
			if err := r.Inline(f.Name).release(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
