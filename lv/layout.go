// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lv

import (
	"fmt"
	"strings"
)

// Type is the type of a record member.
type Type uint8

const (
	TUint8 Type = iota + 1
	TUint16
	TInt16
	TInt32
	TUint32
	TFloat32
	TFloat64
	THandle // reference to a handle
	TInline // nested record
)

func (t Type) String() string {
	switch t {
	case TUint8:
		return "uint8"
	case TUint16:
		return "uint16"
	case TInt16:
		return "int16"
	case TInt32:
		return "int32"
	case TUint32:
		return "uint32"
	case TFloat32:
		return "float32"
	case TFloat64:
		return "float64"
	case THandle:
		return "handle"
	case TInline:
		return "inline"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

func (t Type) size() int {
	switch t {
	case TUint8:
		return 1
	case TUint16, TInt16:
		return 2
	case TInt32, TUint32, TFloat32:
		return 4
	case TFloat64:
		return 8
	case THandle:
		return refSize
	default:
		panic(fmt.Errorf("lv: no static size for %v", t))
	}
}

// Field describes a member of a record.
type Field struct {
	Name string
	Type Type

	Elem Kind    // element kind of a handle member
	Rank int     // rank of a handle member
	Sub  *Layout // layout of an inline member, or of the records of a handle member

	Offset int
}

func (f Field) size() int {
	if f.Type == TInline {
		return f.Sub.size
	}
	return f.Type.size()
}

func (f Field) align() int {
	if f.Type == TInline {
		return f.Sub.align
	}
	return f.Type.size()
}

func U8(name string) Field { return Field{Name: name, Type: TUint8} }
func U16(name string) Field { return Field{Name: name, Type: TUint16} }
func I16(name string) Field { return Field{Name: name, Type: TInt16} }
func I32(name string) Field { return Field{Name: name, Type: TInt32} }
func U32(name string) Field { return Field{Name: name, Type: TUint32} }
func F32(name string) Field { return Field{Name: name, Type: TFloat32} }
func F64(name string) Field { return Field{Name: name, Type: TFloat64} }

// Str declares a string handle member.
func Str(name string) Field {
	return Field{Name: name, Type: THandle, Elem: String, Rank: 1}
}

// Array declares a 1-dim array handle member.
func Array(name string, elem Kind) Field {
	return Field{Name: name, Type: THandle, Elem: elem, Rank: 1}
}

// Array2D declares a 2-dim array handle member.
func Array2D(name string, elem Kind) Field {
	return Field{Name: name, Type: THandle, Elem: elem, Rank: 2}
}

// Records declares a handle member holding an array of records.
func Records(name string, lay *Layout) Field {
	return Field{Name: name, Type: THandle, Elem: Cluster, Rank: 1, Sub: lay}
}

// Inline declares a record member stored in place.
func Inline(name string, lay *Layout) Field {
	return Field{Name: name, Type: TInline, Sub: lay}
}

// Layout is the memory layout of a record, following the C alignment rules.
type Layout struct {
	name   string
	fields []Field
	index  map[string]int
	size   int
	align  int
}

// NewLayout computes the layout of a record made of the provided fields.
// NewLayout panics on duplicate or empty field names.
func NewLayout(name string, fields ...Field) *Layout {
	lay := &Layout{
		name:   name,
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
		align:  1,
	}
	off := 0
	for i, f := range fields {
		if f.Name == "" {
			panic(fmt.Errorf("lv: empty field name in layout %q", name))
		}
		if _, dup := lay.index[f.Name]; dup {
			panic(fmt.Errorf("lv: duplicate field %q in layout %q", f.Name, name))
		}
		if (f.Type == TInline || f.Elem == Cluster) && f.Sub == nil {
			panic(fmt.Errorf("lv: field %q in layout %q has no sub-layout", f.Name, name))
		}
		align := f.align()
		off = alignUp(off, align)
		f.Offset = off
		off += f.size()
		lay.align = max(lay.align, align)
		lay.fields[i] = f
		lay.index[f.Name] = i
	}
	lay.size = alignUp(off, lay.align)
	return lay
}

func (lay *Layout) Name() string { return lay.name }
func (lay *Layout) Size() int { return lay.size }
func (lay *Layout) Align() int { return lay.align }

// Fields returns a copy of the fields of the layout.
func (lay *Layout) Fields() []Field {
	return append([]Field(nil), lay.fields...)
}

// Field returns the named field.
func (lay *Layout) Field(name string) (Field, bool) {
	i, ok := lay.index[name]
	if !ok {
		return Field{}, false
	}
	return lay.fields[i], true
}

func (lay *Layout) String() string {
	o := new(strings.Builder)
	fmt.Fprintf(o, "%s{", lay.name)
	for i, f := range lay.fields {
		if i > 0 {
			o.WriteString("; ")
		}
		switch f.Type {
		case THandle:
			fmt.Fprintf(o, "%s@%d: handle<%v/%d>", f.Name, f.Offset, f.Elem, f.Rank)
		case TInline:
			fmt.Fprintf(o, "%s@%d: %v", f.Name, f.Offset, f.Sub)
		default:
			fmt.Fprintf(o, "%s@%d: %v", f.Name, f.Offset, f.Type)
		}
	}
	fmt.Fprintf(o, "} (size=%d, align=%d)", lay.size, lay.align)
	return o.String()
}
