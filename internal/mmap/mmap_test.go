// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmap // import "github.com/go-lpc/ionitof/internal/mmap"

import (
	"errors"
	"io"
	"os"
	"testing"
)

func TestBlock(t *testing.T) {
	t.Run("nil-block", func(t *testing.T) {
		var b *Block

		_, err := b.ReadAt(nil, 0)
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid read-at error: %+v", err)
		}

		_, err = b.WriteAt(nil, 0)
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid write-at error: %+v", err)
		}

		err = b.Close()
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid close error: %+v", err)
		}

		if !b.Closed() {
			t.Fatalf("nil block should be closed")
		}
	})
	t.Run("nil-data", func(t *testing.T) {
		var b Block

		_, err := b.ReadAt(nil, 0)
		if !errors.Is(err, errClosed) {
			t.Fatalf("invalid read-at error: %+v", err)
		}

		_, err = b.WriteAt(nil, 0)
		if !errors.Is(err, errClosed) {
			t.Fatalf("invalid write-at error: %+v", err)
		}

		err = b.Close()
		if err != nil {
			t.Fatalf("error closing nil-data block: %+v", err)
		}
	})
}

func TestBlockFrom(t *testing.T) {
	b := BlockFrom([]byte{0, 1, 2, 3})

	if got, want := b.Len(), 4; got != want {
		t.Fatalf("invalid len: got=%d, want=%d", got, want)
	}

	if got, want := b.Bytes()[1], byte(1); got != want {
		t.Fatalf("invalid value: got=%d, want=%d", got, want)
	}

	_, err := b.WriteAt(nil, -1)
	if got, want := err.Error(), "mmap: invalid WriteAt offset -1"; got != want {
		t.Fatalf("invalid error: %+v", err)
	}

	_, err = b.ReadAt(nil, -1)
	if got, want := err.Error(), "mmap: invalid ReadAt offset -1"; got != want {
		t.Fatalf("invalid error: %+v", err)
	}

	err = b.Close()
	if err != nil {
		t.Fatalf("could not close block: %+v", err)
	}
	if !b.Closed() {
		t.Fatalf("block should be closed")
	}
}

func TestAnon(t *testing.T) {
	for _, size := range []int{0, 1, 4, 4096, 4097} {
		b, err := Anon(size)
		if err != nil {
			t.Fatalf("could not map %d bytes: %+v", size, err)
		}

		if got, want := b.Len(), size; got != want {
			t.Fatalf("invalid len: got=%d, want=%d", got, want)
		}
		for i, v := range b.Bytes() {
			if v != 0 {
				t.Fatalf("block not zero-filled at %d: %d", i, v)
			}
		}

		if size > 0 {
			_, err = b.WriteAt([]byte{0xff}, int64(size-1))
			if err != nil {
				t.Fatalf("could not write to block: %+v", err)
			}
			p := make([]byte, 2)
			n, err := b.ReadAt(p, int64(size-1))
			if !errors.Is(err, io.EOF) {
				t.Fatalf("invalid short-read error: %+v", err)
			}
			if n != 1 || p[0] != 0xff {
				t.Fatalf("invalid read: n=%d, p=%v", n, p)
			}
		}

		err = b.Close()
		if err != nil {
			t.Fatalf("could not unmap block: %+v", err)
		}
	}

	_, err := Anon(-1)
	if err == nil {
		t.Fatalf("expected an error")
	}
}
