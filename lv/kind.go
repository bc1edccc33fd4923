// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lv

import "fmt"

// Kind is the element type of a handle payload.
type Kind uint8

const (
	Invalid Kind = iota
	Float32
	Float64
	Int32
	Uint8
	Bool
	String    // raw bytes of a string handle
	StringRef // references to string handles
	Cluster   // records of a given layout
)

// refSize is the size of a handle reference slot, a pointer on 64b hosts.
const refSize = 8

func (k Kind) String() string {
	switch k {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	case String:
		return "string"
	case StringRef:
		return "string-ref"
	case Cluster:
		return "cluster"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// size returns the size in bytes of one element of kind k.
func (k Kind) size(lay *Layout) int {
	switch k {
	case Float32, Int32:
		return 4
	case Float64:
		return 8
	case Uint8, Bool, String:
		return 1
	case StringRef:
		return refSize
	case Cluster:
		return lay.size
	default:
		panic(fmt.Errorf("lv: invalid kind %v", k))
	}
}

func (k Kind) align(lay *Layout) int {
	switch k {
	case Cluster:
		return lay.align
	default:
		return k.size(lay)
	}
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}
