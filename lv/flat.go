// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lv

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Encoder writes records and handles to an output stream, in the
// flattened format: big-endian scalars, arrays prefixed with their
// int32 dimension sizes and strings prefixed with their int32 length.
// Null handles are flattened as empty arrays.
type Encoder struct {
	w   io.Writer
	buf []byte
	err error
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		buf: make([]byte, 8),
	}
}

// Encode flattens the record r and all the handles it references.
func (enc *Encoder) Encode(r Record) error {
	enc.record(r)
	if enc.err != nil {
		return fmt.Errorf("lv: could not flatten %q record: %w", r.lay.name, enc.err)
	}
	return nil
}

// EncodeHandle flattens h and all the handles it references.
func (enc *Encoder) EncodeHandle(h *Handle) error {
	if h == nil {
		return ErrNilHandle
	}
	enc.handle(h.rank, h)
	if enc.err != nil {
		return fmt.Errorf("lv: could not flatten handle %d: %w", h.id, enc.err)
	}
	return nil
}

func (enc *Encoder) record(r Record) {
	for _, f := range r.lay.fields {
		if enc.err != nil {
			return
		}
		p := r.buf[f.Offset:]
		switch f.Type {
		case TUint8:
			enc.writeU8(p[0])
		case TUint16, TInt16:
			enc.writeU16(order.Uint16(p))
		case TInt32, TUint32, TFloat32:
			enc.writeU32(order.Uint32(p))
		case TFloat64:
			enc.writeU64(order.Uint64(p))
		case THandle:
			enc.handle(f.Rank, r.Handle(f.Name))
		case TInline:
			enc.record(r.Inline(f.Name))
		}
	}
}

func (enc *Encoder) handle(rank int, h *Handle) {
	if h == nil {
		for i := 0; i < rank; i++ {
			enc.writeU32(0)
		}
		return
	}
	if h.blk == nil {
		enc.err = fmt.Errorf("%w: handle %d", ErrReleased, h.id)
		return
	}

	for _, d := range h.Dims() {
		enc.writeU32(uint32(int32(d)))
	}

	n := h.Len()
	switch h.kind {
	case Uint8, Bool, String:
		enc.write(h.Bytes())
	case Int32, Float32:
		p := h.payload()
		for i := 0; i < n; i++ {
			enc.writeU32(order.Uint32(p[4*i:]))
		}
	case Float64:
		p := h.payload()
		for i := 0; i < n; i++ {
			enc.writeU64(order.Uint64(p[8*i:]))
		}
	case StringRef:
		for i := 0; i < n; i++ {
			enc.handle(1, h.Elem(i))
		}
	case Cluster:
		for i := 0; i < n; i++ {
			enc.record(h.Record(i))
		}
	}
}

func (enc *Encoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
}

func (enc *Encoder) writeU8(v uint8) {
	enc.buf[0] = v
	enc.write(enc.buf[:1])
}

func (enc *Encoder) writeU16(v uint16) {
	const n = 2
	binary.BigEndian.PutUint16(enc.buf[:n], v)
	enc.write(enc.buf[:n])
}

func (enc *Encoder) writeU32(v uint32) {
	const n = 4
	binary.BigEndian.PutUint32(enc.buf[:n], v)
	enc.write(enc.buf[:n])
}

func (enc *Encoder) writeU64(v uint64) {
	const n = 8
	binary.BigEndian.PutUint64(enc.buf[:n], v)
	enc.write(enc.buf[:n])
}

// Decoder reads flattened records and handles from an input stream.
// Handles are allocated in the arena of the destination record.
//
// When the input stream reports its unread length (as *bytes.Reader,
// *bytes.Buffer and *strings.Reader do), dimensions needing more bytes
// than remain are rejected before any allocation.
type Decoder struct {
	r   io.Reader
	buf []byte
	err error
}

// NewDecoder returns a new Decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, 8),
	}
}

// Decode unflattens a record into r.
// Handle members of r are allocated or resized as needed.
func (dec *Decoder) Decode(r Record) error {
	dec.record(r)
	if dec.err != nil {
		return fmt.Errorf("lv: could not unflatten %q record: %w", r.lay.name, dec.err)
	}
	return nil
}

// DecodeHandle unflattens an array into h, resizing it as needed.
func (dec *Decoder) DecodeHandle(h *Handle) error {
	err := h.arena.check(h)
	if err != nil {
		return err
	}
	dims := dec.dims(h.rank)
	dec.bound(h.kind, h.lay, dims)
	if dec.err == nil {
		dec.err = h.arena.Resize(h, dims...)
	}
	dec.payload(h)
	if dec.err != nil {
		return fmt.Errorf("lv: could not unflatten handle %d: %w", h.id, dec.err)
	}
	return nil
}

func (dec *Decoder) record(r Record) {
	for _, f := range r.lay.fields {
		if dec.err != nil {
			return
		}
		p := r.buf[f.Offset:]
		switch f.Type {
		case TUint8:
			p[0] = dec.readU8()
		case TUint16, TInt16:
			order.PutUint16(p, dec.readU16())
		case TInt32, TUint32, TFloat32:
			order.PutUint32(p, dec.readU32())
		case TFloat64:
			order.PutUint64(p, dec.readU64())
		case THandle:
			dec.field(r, f)
		case TInline:
			dec.record(r.Inline(f.Name))
		}
	}
}

func (dec *Decoder) field(r Record, f Field) {
	dims := dec.dims(f.Rank)
	dec.bound(f.Elem, f.Sub, dims)
	if dec.err != nil {
		return
	}
	if r.Handle(f.Name) == nil && empty(dims) {
		return
	}
	h, err := r.Alloc(f.Name, dims...)
	if err != nil {
		dec.err = err
		return
	}
	dec.payload(h)
}

func (dec *Decoder) payload(h *Handle) {
	if dec.err != nil {
		return
	}
	n := h.Len()
	switch h.kind {
	case Uint8, Bool, String:
		dec.read(h.Bytes())
	case Int32, Float32:
		p := h.payload()
		for i := 0; i < n; i++ {
			order.PutUint32(p[4*i:], dec.readU32())
		}
	case Float64:
		p := h.payload()
		for i := 0; i < n; i++ {
			order.PutUint64(p[8*i:], dec.readU64())
		}
	case StringRef:
		for i := 0; i < n && dec.err == nil; i++ {
			dims := dec.dims(1)
			dec.bound(String, nil, dims)
			if dec.err != nil {
				return
			}
			str, err := h.arena.Allocate(String, dims[0])
			if err != nil {
				dec.err = err
				return
			}
			dec.read(str.Bytes())
			if err := h.SetElem(i, str); err != nil {
				dec.err = err
			}
		}
	case Cluster:
		for i := 0; i < n && dec.err == nil; i++ {
			dec.record(h.Record(i))
		}
	}
}

func (dec *Decoder) dims(rank int) []int {
	dims := make([]int, rank)
	for i := range dims {
		v := int32(dec.readU32())
		if dec.err != nil {
			return dims
		}
		if v < 0 {
			dec.err = fmt.Errorf("lv: invalid flattened dimension %d", v)
			return dims
		}
		dims[i] = int(v)
	}
	return dims
}

// bound checks the flattened payload of an array of dims elements of
// kind k can still be read from the input stream.
func (dec *Decoder) bound(k Kind, lay *Layout, dims []int) {
	if dec.err != nil {
		return
	}
	n, err := count(dims)
	if err != nil {
		dec.err = err
		return
	}
	r, ok := dec.r.(interface{ Len() int })
	if !ok {
		return
	}
	sz, left := flatSize(k, lay), r.Len()
	if sz > 0 && n > left/sz {
		dec.err = fmt.Errorf(
			"%w: dimensions %v need at least %d bytes, %d left",
			io.ErrUnexpectedEOF, dims, n*sz, left,
		)
	}
}

// flatSize returns the minimal flattened size of an element of kind k.
func flatSize(k Kind, lay *Layout) int {
	switch k {
	case StringRef:
		return 4
	case Cluster:
		return lay.flatSize()
	default:
		return k.size(lay)
	}
}

func (lay *Layout) flatSize() int {
	n := 0
	for _, f := range lay.fields {
		switch f.Type {
		case THandle:
			n += 4 * f.Rank
		case TInline:
			n += f.Sub.flatSize()
		default:
			n += f.Type.size()
		}
	}
	return n
}

func empty(dims []int) bool {
	for _, d := range dims {
		if d == 0 {
			return true
		}
	}
	return false
}

func (dec *Decoder) read(p []byte) {
	if dec.err != nil {
		return
	}
	_, dec.err = io.ReadFull(dec.r, p)
}

func (dec *Decoder) readU8() uint8 {
	dec.read(dec.buf[:1])
	return dec.buf[0]
}

func (dec *Decoder) readU16() uint16 {
	const n = 2
	dec.read(dec.buf[:n])
	return binary.BigEndian.Uint16(dec.buf[:n])
}

func (dec *Decoder) readU32() uint32 {
	const n = 4
	dec.read(dec.buf[:n])
	return binary.BigEndian.Uint32(dec.buf[:n])
}

func (dec *Decoder) readU64() uint64 {
	const n = 8
	dec.read(dec.buf[:n])
	return binary.BigEndian.Uint64(dec.buf[:n])
}
