/*
Package buffer - resizable read/write byte buffer

A muduo-style buffer: one growable slice, a read cursor and a write
cursor into it.

	+-------------------+-------------------+-------------------+
	| prependable bytes | readable bytes    | writable bytes    |
	+-------------------+-------------------+-------------------+
	0               readerIndex        writerIndex            cap

Appending past the end compacts the already-read prefix forward before
growing the slice, so a connection that alternates small reads and
reads-to-exhaustion doesn't grow without bound.

Not internally synchronized - each Buffer is owned by exactly one
parser/connection and accessed from a single goroutine at a time.
*/
package buffer

import "encoding/binary"

const initialCapacity = 1024

// Buffer is a resizable byte container with independent read and write
// cursors.
type Buffer struct {
	data        []byte
	readerIndex int
	writerIndex int
}

// New returns an empty Buffer with a small initial capacity.
func New() *Buffer {
	return &Buffer{data: make([]byte, initialCapacity)}
}

// ReadableBytes returns the number of bytes available to read.
func (b *Buffer) ReadableBytes() int {
	return b.writerIndex - b.readerIndex
}

// WritableBytes returns the number of bytes that can be appended before
// the buffer must grow.
func (b *Buffer) WritableBytes() int {
	return len(b.data) - b.writerIndex
}

// Append copies p into the buffer's writable region, growing (and
// compacting first read data forward) as needed.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.ensureWritable(len(p))
	b.writerIndex += copy(b.data[b.writerIndex:], p)
}

// ensureWritable guarantees at least n writable bytes, compacting
// already-consumed prefix bytes before growing the underlying slice.
func (b *Buffer) ensureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	// Reclaim space already read before paying for a grow.
	if b.readerIndex+b.WritableBytes() >= n {
		readable := b.ReadableBytes()
		copy(b.data, b.data[b.readerIndex:b.writerIndex])
		b.readerIndex = 0
		b.writerIndex = readable
		return
	}
	newCap := len(b.data)*2 + n
	grown := make([]byte, newCap)
	readable := b.ReadableBytes()
	copy(grown, b.data[b.readerIndex:b.writerIndex])
	b.data = grown
	b.readerIndex = 0
	b.writerIndex = readable
}

// Peek returns the next n readable bytes without advancing the read
// cursor. Panics if n exceeds ReadableBytes - callers must check first.
func (b *Buffer) Peek(n int) []byte {
	if n > b.ReadableBytes() {
		panic("buffer: Peek past writer index")
	}
	return b.data[b.readerIndex : b.readerIndex+n]
}

// Read returns the next n readable bytes and advances the read cursor
// past them.
func (b *Buffer) Read(n int) []byte {
	out := b.Peek(n)
	b.readerIndex += n
	return out
}

// PeekUint32BE returns the first 4 readable bytes as a big-endian
// uint32 without advancing the cursor.
func (b *Buffer) PeekUint32BE() uint32 {
	return binary.BigEndian.Uint32(b.Peek(4))
}

// ReadUint32BE returns the first 4 readable bytes as a big-endian
// uint32 and advances the cursor past them.
func (b *Buffer) ReadUint32BE() uint32 {
	v := b.PeekUint32BE()
	b.readerIndex += 4
	return v
}

// Retrieve discards the next n readable bytes without returning them.
func (b *Buffer) Retrieve(n int) {
	if n > b.ReadableBytes() {
		n = b.ReadableBytes()
	}
	b.readerIndex += n
}

// RetrieveAll discards all readable bytes and resets both cursors to
// the start of the buffer, allowing the underlying slice to be reused
// from scratch.
func (b *Buffer) RetrieveAll() {
	b.readerIndex = 0
	b.writerIndex = 0
}
