// Package tailbuffer keeps the last N bytes written to it. It is used to
// attach the end of a tool's diagnostic stream to error messages without
// holding the whole stream in memory twice.
package tailbuffer

import (
	"io"
	"strings"
	"sync"
)

// Buffer is a fixed-capacity ring of the most recent bytes written. It is
// safe for concurrent use.
type Buffer struct {
	lock  sync.Mutex
	buf   []byte
	start int
	size  int
	total int64
}

// New creates a Buffer retaining at most capacity bytes.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{buf: make([]byte, capacity)}
}

// Write implements io.Writer. It never fails and always reports the full
// length of p as written, even when older bytes are evicted.
func (b *Buffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	n := len(p)
	b.total += int64(n)
	capacity := len(b.buf)
	if capacity == 0 {
		return n, nil
	}
	if len(p) > capacity {
		p = p[len(p)-capacity:]
	}
	for _, c := range p {
		end := (b.start + b.size) % capacity
		b.buf[end] = c
		if b.size < capacity {
			b.size++
		} else {
			b.start = (b.start + 1) % capacity
		}
	}
	return n, nil
}

// Bytes returns a copy of the retained bytes in write order.
func (b *Buffer) Bytes() []byte {
	b.lock.Lock()
	defer b.lock.Unlock()

	out := make([]byte, b.size)
	capacity := len(b.buf)
	for i := 0; i < b.size; i++ {
		out[i] = b.buf[(b.start+i)%capacity]
	}
	return out
}

// String returns the retained bytes as a string with surrounding whitespace
// trimmed. If earlier output was evicted the result is prefixed with "...".
func (b *Buffer) String() string {
	data := b.Bytes()
	s := strings.TrimSpace(string(data))
	if b.Truncated() && s != "" {
		return "..." + s
	}
	return s
}

// Len returns the number of retained bytes.
func (b *Buffer) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.size
}

// Truncated reports whether any written bytes have been evicted.
func (b *Buffer) Truncated() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.total > int64(b.size)
}

// Reset discards all retained bytes.
func (b *Buffer) Reset() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.start, b.size, b.total = 0, 0, 0
}

var _ io.Writer = (*Buffer)(nil)
