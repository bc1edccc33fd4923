// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lv

import (
	"bytes"
	"errors"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	for _, tc := range [][]byte{
		nil,
		{},
		[]byte("Udrift"),
		[]byte("\xb0C"),
		{0x00, 0x7f, 0x80, 0xff},
		all,
	} {
		txt := Decode(tc)
		got, err := Encode(txt)
		if err != nil {
			t.Fatalf("could not encode %q: %+v", txt, err)
		}
		if !bytes.Equal(got, tc) {
			t.Fatalf("round-trip failed: got=%q, want=%q", got, tc)
		}
	}
}

func TestDecodeOrdinal(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	i := 0
	for _, r := range Decode(all) {
		if int(r) != i {
			t.Fatalf("byte 0x%02x decoded as %U", i, r)
		}
		i++
	}
	if i != 256 {
		t.Fatalf("invalid number of decoded runes: got=%d, want=256", i)
	}
}

func TestEncodeRange(t *testing.T) {
	for _, tc := range []struct {
		txt  string
		want []byte
		err  error
	}{
		{txt: "", want: []byte{}},
		{txt: "ppbV", want: []byte("ppbV")},
		{txt: "µg/m³", want: []byte("\xb5g/m\xb3")},
		{txt: "ÿ", want: []byte{0xff}},
		{txt: "Ā", err: ErrEncodingRange},
		{txt: "m/z €", err: ErrEncodingRange},
		{txt: "\xff", err: ErrEncodingRange}, // invalid utf-8
	} {
		t.Run(tc.txt, func(t *testing.T) {
			got, err := Encode(tc.txt)
			switch {
			case tc.err != nil:
				if !errors.Is(err, tc.err) {
					t.Fatalf("invalid error: got=%+v, want=%v", err, tc.err)
				}
				return
			case err != nil:
				t.Fatalf("could not encode: %+v", err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Fatalf("invalid encoding: got=%q, want=%q", got, tc.want)
			}
		})
	}
}

func TestFixed(t *testing.T) {
	for _, tc := range []struct {
		name string
		buf  []byte
		cap  int
		want string
	}{
		{"nul", []byte("abc\x00def"), 8, "abc"},
		{"capacity", []byte("abcdef"), 3, "abc"},
		{"full", []byte("abcdef"), 6, "abcdef"},
		{"large-capacity", []byte("ab"), 260, "ab"},
		{"zero", []byte("ab"), 0, ""},
		{"latin1", []byte("T=25\xb0C\x00\x00"), 8, "T=25°C"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got, want := DecodeFixed(tc.buf, tc.cap), tc.want; got != want {
				t.Fatalf("invalid decode: got=%q, want=%q", got, want)
			}
		})
	}

	buf := bytes.Repeat([]byte{'x'}, 8)
	n, err := EncodeFixed(buf, "D:\\Data\\file.h5")
	if err != nil {
		t.Fatalf("could not encode: %+v", err)
	}
	if got, want := n, 8; got != want {
		t.Fatalf("invalid truncated length: got=%d, want=%d", got, want)
	}
	if got, want := DecodeFixed(buf, len(buf)), "D:\\Data\\"; got != want {
		t.Fatalf("invalid truncated text: got=%q, want=%q", got, want)
	}

	n, err = EncodeFixed(buf, "a°")
	if err != nil {
		t.Fatalf("could not encode: %+v", err)
	}
	if got, want := n, 2; got != want {
		t.Fatalf("invalid length: got=%d, want=%d", got, want)
	}
	if got, want := buf[:3], []byte("a\xb0\x00"); !bytes.Equal(got, want) {
		t.Fatalf("invalid buffer: got=%q, want=%q", got, want)
	}

	_, err = EncodeFixed(buf, "€")
	if !errors.Is(err, ErrEncodingRange) {
		t.Fatalf("invalid error: %+v", err)
	}
}
