package parallel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

func TestParallelize_CoversEveryItem(t *testing.T) {
	for _, items := range []int{0, 1, 7, 100, 1001} {
		hits := make([]int32, items)
		Parallelize(items, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("items=%d: index %d visited %d times", items, i, h)
			}
		}
	}
}

func TestParallelizeWithThreshold_Sequential(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		calls++
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, end)
	})
	assert.Equal(t, 1, calls)
}

func TestChunks(t *testing.T) {
	assert.Nil(t, Chunks(0, 4))
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 8}}, Chunks(8, 3))
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, Chunks(2, 16))
}

func TestForEachChunk_DisjointWrites(t *testing.T) {
	out := make([]int, 257)
	err := ForEachChunk(context.Background(), len(out), 8, 0, func(_ context.Context, start, end int) error {
		for i := start; i < end; i++ {
			out[i] = i * i
		}
		return nil
	})
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestForEachChunk_FirstError(t *testing.T) {
	sentinel := errors.New("target failed")
	err := ForEachChunk(context.Background(), 100, 4, 0, func(ctx context.Context, start, end int) error {
		if start == 0 {
			return sentinel
		}
		<-ctx.Done()
		return ctx.Err()
	})
	assert.True(t, errors.Is(err, sentinel))
}

func TestForEachChunk_Panic(t *testing.T) {
	err := ForEachChunk(context.Background(), 10, 2, 0, func(_ context.Context, start, end int) error {
		if start > 0 {
			panic("bad target")
		}
		return nil
	})
	var pe *errors.PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "bad target", pe.PanicValue)
}

func TestForEachChunk_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := ForEachChunk(ctx, 10, 2, 0, func(context.Context, int, int) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestForEachChunk_Deadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := ForEachChunk(ctx, 4, 4, 0, func(ctx context.Context, _, _ int) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func BenchmarkForEachChunk(b *testing.B) {
	out := make([]float64, 4096)
	for i := 0; i < b.N; i++ {
		_ = ForEachChunk(context.Background(), len(out), 0, DefaultThreshold, func(_ context.Context, s, e int) error {
			for j := s; j < e; j++ {
				out[j] = float64(j) * 0.5
			}
			return nil
		})
	}
}
