package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesTasks(t *testing.T) {
	var processed sync.Map
	done := make(chan struct{}, 3)
	q := NewQueue("test", func(ctx context.Context, task Task) error {
		processed.Store(task.ID, task.Payload)
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, q.Enqueue(Task{ID: id, Payload: id + "-payload"}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}

	value, ok := processed.Load("t2")
	require.True(t, ok)
	assert.Equal(t, "t2-payload", value)
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, task Task) error { return nil }, QueueConfig{})
	err := q.Enqueue(Task{ID: "t1"})
	require.Error(t, err)
}

func TestQueueRetriesFailedTasks(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, task Task) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 10 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Task{ID: "t1"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task was not retried to completion")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	var attempts int32
	q := NewQueue("test", func(ctx context.Context, task Task) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("permanent")
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Task{ID: "t1"}))

	// first run plus two retries
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) == 3
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestQueueReportsDepth(t *testing.T) {
	var depths []int
	var mu sync.Mutex
	block := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, task Task) error {
		<-block
		return nil
	}, QueueConfig{
		Workers:    1,
		BufferSize: 8,
		OnDepthChange: func(depth int) {
			mu.Lock()
			depths = append(depths, depth)
			mu.Unlock()
		},
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Task{ID: "t1"}))
	require.NoError(t, q.Enqueue(Task{ID: "t2"}))
	close(block)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(depths) >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueueStopWaitsForWorkers(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, task Task) error { return nil }, QueueConfig{Workers: 4})
	q.Start(context.Background())

	done := make(chan struct{})
	go func() {
		q.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
