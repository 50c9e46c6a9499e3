package pools

import (
	"slices"
	"sync"
	"sync/atomic"
)

// BytePool is a multi-tiered byte slice pool for different size classes.
// The engine draws its per-connection read buffers from it.
type BytePool struct {
	pools []*sync.Pool
	sizes []int

	gets      atomic.Uint64
	puts      atomic.Uint64
	oversized atomic.Uint64
}

// Common buffer sizes for HTTP request reads
var defaultSizes = []int{
	512,
	2048,
	8192,
	32768,
}

// NewBytePool creates a byte pool with the standard size tiers
func NewBytePool() *BytePool {
	return NewBytePoolWithSizes(defaultSizes)
}

// NewBytePoolWithSizes creates a byte pool with custom size tiers. Sizes are
// sorted ascending; non-positive sizes are dropped.
func NewBytePoolWithSizes(sizes []int) *BytePool {
	sizes = slices.DeleteFunc(slices.Clone(sizes), func(n int) bool { return n <= 0 })
	slices.Sort(sizes)
	sizes = slices.Compact(sizes)

	bp := &BytePool{
		pools: make([]*sync.Pool, len(sizes)),
		sizes: sizes,
	}
	for i, size := range sizes {
		size := size // per-iteration copy for the closure (go < 1.22 loop semantics)
		bp.pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, size)
				return &buf
			},
		}
	}
	return bp
}

// Get returns a buffer of length size. Requests larger than the biggest tier
// are allocated directly and are not retained by Put.
func (bp *BytePool) Get(size int) *[]byte {
	bp.gets.Add(1)
	if i := bp.tier(size); i != -1 {
		buf := bp.pools[i].Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	}

	bp.oversized.Add(1)
	buf := make([]byte, size)
	return &buf
}

// Put returns a buffer obtained from Get.
func (bp *BytePool) Put(buf *[]byte) {
	if buf == nil {
		return
	}
	capacity := cap(*buf)
	for i, size := range bp.sizes {
		if capacity == size {
			*buf = (*buf)[:capacity]
			bp.pools[i].Put(buf)
			bp.puts.Add(1)
			return
		}
	}
}

func (bp *BytePool) tier(size int) int {
	for i, poolSize := range bp.sizes {
		if size <= poolSize {
			return i
		}
	}
	return -1
}

// BytePoolStats are cumulative pool counters
type BytePoolStats struct {
	Gets      uint64
	Puts      uint64
	Oversized uint64
}

func (bp *BytePool) Stats() BytePoolStats {
	return BytePoolStats{
		Gets:      bp.gets.Load(),
		Puts:      bp.puts.Load(),
		Oversized: bp.oversized.Load(),
	}
}
