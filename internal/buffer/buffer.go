// Package buffer holds the fixed-capacity chunks that travel through the
// capture pipeline. A Buffer has exactly one owner at a time; ownership moves
// with the queue it is pushed to, so its contents are never locked.
package buffer

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrOutOfMemory is returned by an Allocator that cannot hand out another
// buffer.
var ErrOutOfMemory = errors.New("buffer: out of memory")

type Buffer struct {
	data []byte
	n    int
	ts   time.Duration
}

func (b *Buffer) Cap() int { return len(b.data) }
func (b *Buffer) Len() int { return b.n }

// Space is the whole backing array, for the reader to fill.
func (b *Buffer) Space() []byte { return b.data }

// Bytes is the used part of the buffer.
func (b *Buffer) Bytes() []byte { return b.data[:b.n] }

// Timestamp is the capture time relative to the process clock origin.
func (b *Buffer) Timestamp() time.Duration { return b.ts }

// Stamp records n used bytes captured at ts.
func (b *Buffer) Stamp(n int, ts time.Duration) {
	if n < 0 || n > len(b.data) {
		panic(fmt.Sprintf("buffer: stamp %d outside capacity %d", n, len(b.data)))
	}
	b.n, b.ts = n, ts
}

func (b *Buffer) Reset() { b.n, b.ts = 0, 0 }

// Allocator creates buffers when the free list is empty.
type Allocator interface {
	New(size int) (*Buffer, error)
	Free(*Buffer)
}

// Budget allocates buffers up to a byte limit. A zero limit never fails.
type Budget struct {
	limit int64
	used  atomic.Int64
	count atomic.Int64
}

func NewBudget(limit int64) *Budget { return &Budget{limit: limit} }

func (a *Budget) New(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("buffer: invalid size %d", size)
	}
	if used := a.used.Add(int64(size)); a.limit > 0 && used > a.limit {
		a.used.Add(-int64(size))
		return nil, ErrOutOfMemory
	}
	a.count.Add(1)
	return &Buffer{data: make([]byte, size)}, nil
}

func (a *Budget) Free(b *Buffer) {
	if b == nil || b.data == nil {
		return
	}
	a.used.Add(-int64(len(b.data)))
	a.count.Add(-1)
	b.data, b.n = nil, 0
}

// Live is the number of buffers allocated and not yet freed.
func (a *Budget) Live() int64 { return a.count.Load() }

// InUse is the number of bytes currently allocated.
func (a *Budget) InUse() int64 { return a.used.Load() }

var origin = time.Now()

// Now is the monotonic capture clock in microsecond resolution.
func Now() time.Duration {
	return time.Since(origin).Truncate(time.Microsecond)
}
