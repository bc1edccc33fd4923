// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lv

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// ErrEncodingRange is returned when a text holds a code point that has no
// single-byte Latin-1 representation.
var ErrEncodingRange = errors.New("lv: code point out of Latin-1 range")

var latin1 = charmap.ISO8859_1

// Decode decodes Latin-1 bytes.
// Every byte maps to the code point of the same value: Decode never fails.
func Decode(p []byte) string {
	if len(p) == 0 {
		return ""
	}
	s, err := latin1.NewDecoder().Bytes(p)
	if err != nil {
		// ISO-8859-1 maps all 256 byte values.
		panic(fmt.Errorf("lv: could not decode latin-1 bytes: %w", err))
	}
	return string(s)
}

// Encode encodes s as Latin-1.
// Code points above U+00FF, and invalid UTF-8 sequences, fail with
// ErrEncodingRange.
func Encode(s string) ([]byte, error) {
	for i, r := range s {
		if r > 0xff {
			return nil, fmt.Errorf("%w: %U at byte %d", ErrEncodingRange, r, i)
		}
	}
	if s == "" {
		return []byte{}, nil
	}
	p, err := latin1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodingRange, err)
	}
	return p, nil
}

// DecodeFixed decodes a fixed-capacity, NUL-terminated buffer.
// Decoding stops at the first NUL byte or after capacity bytes.
func DecodeFixed(buf []byte, capacity int) string {
	if capacity < len(buf) {
		buf = buf[:max(capacity, 0)]
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return Decode(buf)
}

// EncodeFixed encodes s into the fixed-capacity buffer dst, truncating it
// when it does not fit.
// The text is NUL-terminated when there is room for it.
// EncodeFixed returns the number of text bytes written.
func EncodeFixed(dst []byte, s string) (int, error) {
	p, err := Encode(s)
	if err != nil {
		return 0, err
	}
	n := copy(dst, p)
	if n < len(dst) {
		dst[n] = 0
	}
	return n, nil
}
