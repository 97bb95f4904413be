package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	processed := make(chan string, 4)
	handler := func(ctx context.Context, job Job) error {
		processed <- job.ID
		return nil
	}

	queue := NewQueue("test", handler, QueueConfig{Workers: 2, BufferSize: 4})
	queue.Start(context.Background())
	defer queue.Stop()

	require.True(t, queue.TryEnqueue(Job{ID: "a", Type: "test"}))
	require.True(t, queue.TryEnqueue(Job{ID: "b", Type: "test"}))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-processed:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
	assert.Zero(t, queue.Dropped())
}

func TestQueueDropsBeforeStart(t *testing.T) {
	queue := NewQueue("test", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})

	assert.False(t, queue.TryEnqueue(Job{ID: "a"}))
	assert.Equal(t, uint64(1), queue.Dropped())
}

func TestQueueDropsWhenBufferFull(t *testing.T) {
	entered := make(chan struct{}, 2)
	gate := make(chan struct{})
	handler := func(ctx context.Context, job Job) error {
		entered <- struct{}{}
		<-gate
		return nil
	}

	queue := NewQueue("test", handler, QueueConfig{Workers: 1, BufferSize: 1})
	queue.Start(context.Background())
	defer queue.Stop()
	defer close(gate)

	// First job occupies the worker, second fills the buffer.
	require.True(t, queue.TryEnqueue(Job{ID: "a"}))
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the first job")
	}
	require.True(t, queue.TryEnqueue(Job{ID: "b"}))

	assert.False(t, queue.TryEnqueue(Job{ID: "c"}))
	assert.Equal(t, uint64(1), queue.Dropped())
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	handler := func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}

	queue := NewQueue("test", handler, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: time.Millisecond})
	queue.Start(context.Background())
	defer queue.Stop()

	require.True(t, queue.TryEnqueue(Job{ID: "a"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}
