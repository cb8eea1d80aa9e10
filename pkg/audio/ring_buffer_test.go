package audio

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSampleRing(t *testing.T) {
	// 100ms at 48kHz = 4800 samples, rounded up to 8192
	r := NewSampleRing(4800)
	if r.Capacity() != 8192 {
		t.Errorf("Expected capacity 8192, got %d", r.Capacity())
	}
	if r.Len() != 0 {
		t.Errorf("Expected len 0, got %d", r.Len())
	}

	assert.Equal(t, 1, NewSampleRing(0).Capacity())
	assert.Equal(t, 4, NewSampleRing(4).Capacity())
}

func TestSampleRing_PushAndDrain(t *testing.T) {
	r := NewSampleRing(8)

	for i := 0; i < 5; i++ {
		require.True(t, r.Push(float64(i)))
	}
	assert.Equal(t, 5, r.Len())

	dst := make([]float64, 3)
	n := r.DrainInto(dst)
	assert.Equal(t, 3, n)
	assert.Equal(t, []float64{0, 1, 2}, dst)
	assert.Equal(t, 2, r.Len())

	dst = make([]float64, 10)
	n = r.DrainInto(dst)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{3, 4}, dst[:n])

	assert.Equal(t, 0, r.DrainInto(dst), "draining an empty ring returns 0")
}

func TestSampleRing_Wraparound(t *testing.T) {
	r := NewSampleRing(4)
	dst := make([]float64, 4)

	next := 0.0
	for round := 0; round < 10; round++ {
		for i := 0; i < 3; i++ {
			require.True(t, r.Push(next))
			next++
		}
		n := r.DrainInto(dst)
		require.Equal(t, 3, n)
		for i := 0; i < 3; i++ {
			assert.Equal(t, next-3+float64(i), dst[i])
		}
	}
}

func TestSampleRing_FullDropsNewest(t *testing.T) {
	r := NewSampleRing(4)

	for i := 0; i < 4; i++ {
		require.True(t, r.Push(float64(i)))
	}
	assert.False(t, r.Push(99), "push into a full ring must be rejected")
	assert.False(t, r.Push(100))
	assert.Equal(t, uint64(2), r.Dropped())

	dst := make([]float64, 8)
	n := r.DrainInto(dst)
	assert.Equal(t, []float64{0, 1, 2, 3}, dst[:n], "queued samples survive overflow")
}

func TestSampleRing_PushSlice(t *testing.T) {
	r := NewSampleRing(4)

	assert.Equal(t, 3, r.PushSlice([]float64{1, 2, 3}))
	assert.Equal(t, 1, r.PushSlice([]float64{4, 5, 6}))
	assert.Equal(t, uint64(2), r.Dropped())

	dst := make([]float64, 4)
	n := r.DrainInto(dst)
	assert.Equal(t, []float64{1, 2, 3, 4}, dst[:n])
}

func TestSampleRing_ConcurrentTotals(t *testing.T) {
	r := NewSampleRing(256)
	const total = 100000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			r.Push(float64(i))
		}
	}()

	drained := 0
	last := -1.0
	dst := make([]float64, 64)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		n := r.DrainInto(dst)
		for _, s := range dst[:n] {
			// Arrival order is preserved even when samples are dropped.
			require.Greater(t, s, last)
			last = s
		}
		drained += n
		select {
		case <-done:
			drained += r.DrainInto(make([]float64, r.Capacity()))
			assert.LessOrEqual(t, drained, total)
			assert.Equal(t, uint64(total), uint64(drained)+r.Dropped())
			return
		default:
		}
	}
}
