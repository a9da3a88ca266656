// Object pools for reducing GC pressure in hot paths
//
// The periodic paths of the host allocate the same shapes over and
// over: byte buffers for metrics exposition and WebSocket
// notifications, and map[string]any payloads for status reports.
// Pooling them keeps the steady-state allocation rate flat no matter
// how many scrapers and subscribers are attached.
//
// Usage:
//
//	buf := pool.GetByteBuffer()
//	defer pool.PutByteBuffer(buf)
//	// use buf...
//
// Copyright (C) 2026  uartlink developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"sync"
)

// ByteBuffer is a reusable append-only byte buffer.
type ByteBuffer struct {
	buf []byte
}

var byteBufferPool = sync.Pool{
	New: func() any {
		return &ByteBuffer{
			buf: make([]byte, 0, 512), // a status notification fits
		}
	},
}

// GetByteBuffer gets a byte buffer from the pool
func GetByteBuffer() *ByteBuffer {
	b := byteBufferPool.Get().(*ByteBuffer)
	b.buf = b.buf[:0] // Reset length but keep capacity
	return b
}

// PutByteBuffer returns a byte buffer to the pool
func PutByteBuffer(b *ByteBuffer) {
	if b == nil {
		return
	}
	// Don't pool oversized buffers (> 64KB); a full metrics scrape
	// can grow one well past the common case.
	if cap(b.buf) > 64*1024 {
		return
	}
	byteBufferPool.Put(b)
}

// Bytes returns the buffer's byte slice
func (b *ByteBuffer) Bytes() []byte {
	return b.buf
}

// Write appends bytes to the buffer
func (b *ByteBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteByte appends a single byte
func (b *ByteBuffer) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

// WriteString appends a string
func (b *ByteBuffer) WriteString(s string) (int, error) {
	b.buf = append(b.buf, s...)
	return len(s), nil
}

// Len returns the buffer length
func (b *ByteBuffer) Len() int {
	return len(b.buf)
}

// Cap returns the buffer capacity
func (b *ByteBuffer) Cap() int {
	return cap(b.buf)
}

// Reset clears the buffer
func (b *ByteBuffer) Reset() {
	b.buf = b.buf[:0]
}

// CopyBytes returns a fresh copy of the buffer contents, safe to hold
// after the buffer goes back to the pool.
func (b *ByteBuffer) CopyBytes() []byte {
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

// StatusMap pool - for status report payloads
var statusMapPool = sync.Pool{
	New: func() any {
		return make(map[string]any, 8)
	},
}

// GetStatusMap gets a status map from the pool
func GetStatusMap() map[string]any {
	return statusMapPool.Get().(map[string]any)
}

// PutStatusMap returns a status map to the pool after clearing it
func PutStatusMap(m map[string]any) {
	if m == nil {
		return
	}
	clear(m)
	statusMapPool.Put(m)
}
