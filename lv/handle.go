// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"

	"github.com/go-lpc/ionitof/internal/mmap"
)

var order = binary.NativeEndian

// Handle is a stable reference to a relocatable, size-prefixed block.
//
// Slices returned by the view methods (Float32s, Int32s, ...) alias the
// block and are invalidated by Resize and Release.
type Handle struct {
	id    uint32
	kind  Kind
	rank  int
	lay   *Layout
	blk   *mmap.Block
	arena *Arena
}

// ID returns the arena-wide identifier of h.
// The zero ID denotes the null handle.
func (h *Handle) ID() uint32 {
	if h == nil {
		return 0
	}
	return h.id
}

func (h *Handle) Kind() Kind { return h.kind }
func (h *Handle) Rank() int { return h.rank }
func (h *Handle) Layout() *Layout { return h.lay }
func (h *Handle) Arena() *Arena { return h.arena }
func (h *Handle) Released() bool { return h.blk == nil }
func (h *Handle) elemSize() int { return h.kind.size(h.lay) }
func (h *Handle) payload() []byte { return h.blk.Bytes()[h.offset():] }
func (h *Handle) header() []byte { return h.blk.Bytes()[:4*h.rank] }
func (h *Handle) raw(i int) []byte { return h.payload()[i*h.elemSize():] }

// offset returns the payload offset, past the dimension header.
func (h *Handle) offset() int {
	return alignUp(4*h.rank, h.kind.align(h.lay))
}

// Dims returns the dimension sizes stored in the header of h.
func (h *Handle) Dims() []int {
	hdr := h.header()
	dims := make([]int, h.rank)
	for i := range dims {
		dims[i] = int(int32(order.Uint32(hdr[4*i:])))
	}
	return dims
}

func (h *Handle) setDims(dims []int) {
	hdr := h.header()
	for i, d := range dims {
		order.PutUint32(hdr[4*i:], uint32(int32(d)))
	}
}

// Len returns the number of elements held by h.
// Len returns 0 for a nil handle.
func (h *Handle) Len() int {
	if h == nil {
		return 0
	}
	n := 1
	for _, d := range h.Dims() {
		n *= d
	}
	return n
}

func (h *Handle) must(k Kind) {
	if h.blk == nil {
		panic(fmt.Errorf("%w: handle %d", ErrReleased, h.id))
	}
	if h.kind != k {
		panic(fmt.Errorf("%w: got=%v, want=%v", ErrKind, h.kind, k))
	}
}

func view[T any](h *Handle, k Kind) []T {
	h.must(k)
	n := h.Len()
	if n == 0 {
		return []T{}
	}
	p := h.payload()
	return unsafe.Slice((*T)(unsafe.Pointer(&p[0])), n)
}

// Float32s returns a view of the float32 payload of h.
// 2-dim handles are viewed in row-major order.
func (h *Handle) Float32s() []float32 { return view[float32](h, Float32) }

// Float64s returns a view of the float64 payload of h.
func (h *Handle) Float64s() []float64 { return view[float64](h, Float64) }

// Int32s returns a view of the int32 payload of h.
func (h *Handle) Int32s() []int32 { return view[int32](h, Int32) }

// Bytes returns a view of the payload of a uint8, bool or string handle.
func (h *Handle) Bytes() []byte {
	switch h.kind {
	case Uint8, Bool, String:
		h.must(h.kind)
		return h.payload()[:h.Len()]
	default:
		panic(fmt.Errorf("%w: no byte view for %v", ErrKind, h.kind))
	}
}

// Bools returns a copy of the boolean payload of h.
func (h *Handle) Bools() []bool {
	h.must(Bool)
	raw := h.Bytes()
	vs := make([]bool, len(raw))
	for i, v := range raw {
		vs[i] = v != 0
	}
	return vs
}

// Text decodes the payload of a string handle.
// A nil handle decodes to the empty string.
func (h *Handle) Text() string {
	if h == nil {
		return ""
	}
	h.must(String)
	return Decode(h.Bytes())
}

// Elem returns the string handle referenced by the i-th element of h,
// or nil for a null reference.
func (h *Handle) Elem(i int) *Handle {
	h.must(StringRef)
	return h.arena.Lookup(h.ref(i))
}

// Strings decodes all the strings referenced by h.
// Null references decode to the empty string.
func (h *Handle) Strings() []string {
	h.must(StringRef)
	vs := make([]string, h.Len())
	for i := range vs {
		vs[i] = h.Elem(i).Text()
	}
	return vs
}

// Record returns a view of the i-th record held by h.
func (h *Handle) Record(i int) Record {
	h.must(Cluster)
	if i < 0 || i >= h.Len() {
		panic(fmt.Errorf("lv: record index %d out of range [0, %d)", i, h.Len()))
	}
	sz := h.lay.size
	return Record{
		lay:   h.lay,
		buf:   h.raw(i)[:sz:sz],
		arena: h.arena,
	}
}

func (h *Handle) ref(i int) uint32 {
	return uint32(order.Uint64(h.raw(i)))
}

func (h *Handle) setRef(i int, id uint32) {
	order.PutUint64(h.raw(i), uint64(id))
}

// SetFloat32s resizes h to len(vs) and copies vs into it.
func (h *Handle) SetFloat32s(vs []float32) error {
	return fill(h, Float32, vs)
}

// SetFloat64s resizes h to len(vs) and copies vs into it.
func (h *Handle) SetFloat64s(vs []float64) error {
	return fill(h, Float64, vs)
}

// SetInt32s resizes h to len(vs) and copies vs into it.
func (h *Handle) SetInt32s(vs []int32) error {
	return fill(h, Int32, vs)
}

// SetBytes resizes a uint8 handle to len(vs) and copies vs into it.
func (h *Handle) SetBytes(vs []byte) error {
	return fill(h, Uint8, vs)
}

// SetBools resizes h to len(vs) and copies vs into it.
func (h *Handle) SetBools(vs []bool) error {
	raw := make([]byte, len(vs))
	for i, v := range vs {
		if v {
			raw[i] = 1
		}
	}
	return fill(h, Bool, raw)
}

// SetText encodes s as Latin-1 into the string handle h.
func (h *Handle) SetText(s string) error {
	raw, err := Encode(s)
	if err != nil {
		return err
	}
	return fill(h, String, raw)
}

// SetStrings replaces the content of the string-reference handle h with
// newly allocated string handles holding vs.
func (h *Handle) SetStrings(vs []string) error {
	if h.kind != StringRef {
		return fmt.Errorf("%w: got=%v, want=%v", ErrKind, h.kind, StringRef)
	}
	raws := make([][]byte, len(vs))
	for i, v := range vs {
		raw, err := Encode(v)
		if err != nil {
			return fmt.Errorf("lv: could not encode string %d: %w", i, err)
		}
		raws[i] = raw
	}

	err := h.arena.Resize(h, dimsOf(h, len(vs))...)
	if err != nil {
		return err
	}
	if err := h.releaseElems(0, len(vs)); err != nil {
		return err
	}

	for i, raw := range raws {
		str, err := h.arena.Allocate(String, len(raw))
		if err != nil {
			return fmt.Errorf("lv: could not allocate string %d: %w", i, err)
		}
		copy(str.Bytes(), raw)
		h.setRef(i, str.id)
	}
	return nil
}

// SetElem stores the string handle str as the i-th element of h.
// h takes ownership of str and releases the handle previously stored.
func (h *Handle) SetElem(i int, str *Handle) error {
	h.must(StringRef)
	if str != nil && str.kind != String {
		return fmt.Errorf("%w: got=%v, want=%v", ErrKind, str.kind, String)
	}
	if old := h.Elem(i); old != nil && old != str {
		err := h.arena.Release(old)
		if err != nil {
			return err
		}
	}
	h.setRef(i, str.ID())
	return nil
}

func fill[T any](h *Handle, k Kind, vs []T) error {
	if h == nil {
		return ErrNilHandle
	}
	if h.kind != k {
		return fmt.Errorf("%w: got=%v, want=%v", ErrKind, h.kind, k)
	}
	err := h.arena.Resize(h, dimsOf(h, len(vs))...)
	if err != nil {
		return err
	}
	copy(view[T](h, k), vs)
	return nil
}

// dimsOf returns the dimensions used to store n elements in h:
// 2-dim handles become a single row.
func dimsOf(h *Handle, n int) []int {
	if h.rank == 2 {
		if n == 0 {
			return []int{0, 0}
		}
		return []int{1, n}
	}
	return []int{n}
}

// releaseElems releases the handles owned by elements [beg, end) of h.
func (h *Handle) releaseElems(beg, end int) error {
	var errs []error
	switch h.kind {
	case StringRef:
		for i := beg; i < end; i++ {
			id := h.ref(i)
			if id == 0 {
				continue
			}
			h.setRef(i, 0)
			sub := h.arena.Lookup(id)
			if sub == nil {
				errs = append(errs, fmt.Errorf("%w: dangling reference to handle %d", ErrReleased, id))
				continue
			}
			if err := h.arena.Release(sub); err != nil {
				errs = append(errs, err)
			}
		}
	case Cluster:
		for i := beg; i < end; i++ {
			rec := Record{lay: h.lay, buf: h.raw(i)[:h.lay.size], arena: h.arena}
			if err := rec.release(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
