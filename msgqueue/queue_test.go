package msgqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[int](4)
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		require.NoError(t, q.Put(ctx, i))
	}
	require.Equal(t, 4, q.Len())
	for i := 1; i <= 4; i++ {
		v, err := q.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	require.Equal(t, 0, q.Len())
}

func TestQueue_PutTimesOutWhenFull(t *testing.T) {
	q := New[int](1)
	require.NoError(t, q.Put(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Put(ctx, 2)
	require.ErrorIs(t, err, ErrFull)
	require.Equal(t, 1, q.Len())
}

func TestQueue_PutUnblocksOnGet(t *testing.T) {
	q := New[int](1)
	require.NoError(t, q.Put(context.Background(), 1))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		_, _ = q.Get(context.Background())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Put(ctx, 2))
	wg.Wait()

	v, ok := q.TryGet()
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestQueue_GetHonorsContext(t *testing.T) {
	q := New[int](1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := q.Get(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_TryEnqueueAll_AllOrNothing(t *testing.T) {
	q := New[int](2)

	// Batch larger than the remaining capacity: nothing is admitted.
	require.False(t, q.TryEnqueueAll(1, 2, 3))
	require.Equal(t, 0, q.Len())

	// Batch exactly filling the queue: everything is admitted in order.
	require.True(t, q.TryEnqueueAll(1, 2))
	require.Equal(t, 2, q.Len())

	require.False(t, q.TryEnqueueAll(3))

	v, ok := q.TryGet()
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestQueue_TryEnqueueAll_EmptyBatch(t *testing.T) {
	q := New[int](1)
	require.True(t, q.TryEnqueueAll())
	require.Equal(t, 0, q.Len())
}

func TestQueue_TryEnqueueAll_WakesBlockedGetter(t *testing.T) {
	q := New[int](4)
	got := make(chan int, 1)
	go func() {
		v, err := q.Get(context.Background())
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.True(t, q.TryEnqueueAll(7, 8))

	select {
	case v := <-got:
		require.Equal(t, 7, v)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Get was not woken by TryEnqueueAll")
	}
}

func TestQueue_Unbounded(t *testing.T) {
	q := New[int](0)
	require.Equal(t, 0, q.Cap())
	for i := 0; i < 100; i++ {
		require.NoError(t, q.Put(context.Background(), i))
	}
	require.True(t, q.TryEnqueueAll(make([]int, 100)...))
	require.Equal(t, 200, q.Len())
}
