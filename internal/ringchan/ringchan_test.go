package ringchan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_DropsOldestWhenFull(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	ctx := context.Background()
	var got []int
	for r.Len() > 0 {
		v, ok, err := r.Recv(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		got = append(got, v)
	}

	assert.Equal(t, []int{3, 4, 5}, got, "only the newest values MUST survive")
	stats := r.Stats()
	assert.Equal(t, int64(5), stats.Pushed)
	assert.Equal(t, int64(2), stats.Dropped)
	assert.Equal(t, int64(3), stats.Delivered)
}

func TestRing_RecvHonoursContext(t *testing.T) {
	r := New[string](1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok, err := r.Recv(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRing_CloseDrainsThenReportsClosed(t *testing.T) {
	r := New[int](2)
	r.Push(7)
	r.Close()
	r.Close()
	assert.False(t, r.Push(8), "Push after Close MUST be a no-op")

	v, ok, err := r.Recv(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok, err = r.Recv(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "closed ring MUST report ok=false once drained")
}

func TestRing_ConcurrentProducersNeverBlock(t *testing.T) {
	r := New[int](4)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Push(i)
			}
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producers blocked on a full ring")
	}
	assert.Equal(t, 4, r.Len())
	assert.Equal(t, int64(800), r.Stats().Pushed)
}
