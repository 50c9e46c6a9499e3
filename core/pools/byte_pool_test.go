package pools

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytePoolTiers(t *testing.T) {
	bp := NewBytePool()

	tests := []struct {
		size    int
		wantCap int
	}{
		{1, 512},
		{512, 512},
		{513, 2048},
		{4096, 8192},
		{32768, 32768},
	}
	for _, tt := range tests {
		buf := bp.Get(tt.size)
		require.NotNil(t, buf)
		assert.Len(t, *buf, tt.size)
		assert.Equal(t, tt.wantCap, cap(*buf))
		bp.Put(buf)
	}

	stats := bp.Stats()
	assert.Equal(t, uint64(5), stats.Gets)
	assert.Equal(t, uint64(5), stats.Puts)
	assert.Zero(t, stats.Oversized)
}

func TestBytePoolOversized(t *testing.T) {
	bp := NewBytePool()

	buf := bp.Get(64 * 1024)
	assert.Len(t, *buf, 64*1024)
	bp.Put(buf)

	stats := bp.Stats()
	assert.Equal(t, uint64(1), stats.Oversized)
	assert.Zero(t, stats.Puts, "oversized buffers are not retained")
}

func TestBytePoolPutRestoresLength(t *testing.T) {
	bp := NewBytePoolWithSizes([]int{128})

	buf := bp.Get(10)
	bp.Put(buf)
	assert.Len(t, *buf, 128)

	bp.Put(nil)
}

func TestBytePoolCustomSizes(t *testing.T) {
	bp := NewBytePoolWithSizes([]int{1024, 0, 256, 1024, -1})
	assert.Equal(t, []int{256, 1024}, bp.sizes)

	buf := bp.Get(300)
	assert.Equal(t, 1024, cap(*buf))
}

func TestBytePoolConcurrent(t *testing.T) {
	bp := NewBytePool()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				buf := bp.Get(4096)
				(*buf)[0] = byte(i)
				bp.Put(buf)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(4000), bp.Stats().Gets)
}

func BenchmarkBytePool(b *testing.B) {
	bp := NewBytePool()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf := bp.Get(4096)
		bp.Put(buf)
	}
}
