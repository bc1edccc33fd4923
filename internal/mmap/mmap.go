// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mmap provides anonymous memory-mapped blocks used as
// foreign-owned storage for lv handles.
package mmap // import "github.com/go-lpc/ionitof/internal/mmap"

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

var (
	errClosed = errors.New("mmap: closed")
)

// Block is a memory-mapped region living outside of the Go heap.
type Block struct {
	data []byte
	anon bool
}

// Anon maps a zero-filled anonymous block of at least size bytes.
// A zero size still maps a (page-sized) block, so that empty payloads
// are backed by valid memory.
func Anon(size int) (*Block, error) {
	if size < 0 {
		return nil, fmt.Errorf("mmap: invalid block size %d", size)
	}
	n := size
	if n == 0 {
		n = 1
	}
	data, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap: could not map %d bytes: %w", size, err)
	}
	blk := &Block{data: data[:size], anon: true}
	runtime.SetFinalizer(blk, (*Block).Close)
	return blk, nil
}

// BlockFrom wraps a Go-allocated buffer.
// Closing such a block only detaches it.
func BlockFrom(data []byte) *Block {
	return &Block{data: data}
}

// Close unmaps the block.
func (b *Block) Close() error {
	if b == nil {
		return os.ErrInvalid
	}

	if b.data == nil {
		return nil
	}
	data := b.data
	b.data = nil
	runtime.SetFinalizer(b, nil)

	if !b.anon {
		return nil
	}
	return unix.Munmap(data[:cap(data)])
}

// Len returns the length of the block.
func (b *Block) Len() int {
	return len(b.data)
}

// Bytes returns the block memory.
// The returned slice is only valid until the block is closed.
func (b *Block) Bytes() []byte {
	return b.data
}

// Closed reports whether the block was released.
func (b *Block) Closed() bool {
	return b == nil || b.data == nil
}

// ReadAt implements the io.ReaderAt interface.
func (b *Block) ReadAt(p []byte, off int64) (int, error) {
	if b == nil {
		return 0, os.ErrInvalid
	}

	if b.data == nil {
		return 0, errClosed
	}
	if off < 0 || int64(len(b.data)) < off {
		return 0, fmt.Errorf("mmap: invalid ReadAt offset %d", off)
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements the io.WriterAt interface.
func (b *Block) WriteAt(p []byte, off int64) (int, error) {
	if b == nil {
		return 0, os.ErrInvalid
	}

	if b.data == nil {
		return 0, errClosed
	}
	if off < 0 || int64(len(b.data)) < off {
		return 0, fmt.Errorf("mmap: invalid WriteAt offset %d", off)
	}
	n := copy(b.data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

var (
	_ io.ReaderAt = (*Block)(nil)
	_ io.WriterAt = (*Block)(nil)
	_ io.Closer   = (*Block)(nil)
)
