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
	var handled int32
	done := make(chan struct{}, 2)
	q := NewQueue("audit", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&handled, 1)
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 1})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "index_audit"}))
	require.NoError(t, q.TryEnqueue(Job{ID: "2", Type: "index_audit"}))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&handled))
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	q := NewQueue("audit", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) < 2 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, RetryDelay: 10 * time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job not retried")
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&attempts))
}

func TestTryEnqueueRequiresStart(t *testing.T) {
	q := NewQueue("audit", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.TryEnqueue(Job{ID: "1"}))
}

func TestTryEnqueueReportsFullBuffer(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("audit", func(ctx context.Context, job Job) error {
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer func() {
		close(block)
		q.Stop()
	}()

	var full error
	for i := 0; i < 5 && full == nil; i++ {
		full = q.TryEnqueue(Job{ID: "x"})
	}
	assert.ErrorIs(t, full, ErrQueueFull)
}

func TestCoalescingQueueKeepsOneJobPerType(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var handled int32
	q := NewQueue("audit", func(ctx context.Context, job Job) error {
		started <- struct{}{}
		<-release
		atomic.AddInt32(&handled, 1)
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 4, Coalesce: true})
	q.Start(context.Background())
	defer q.Stop()

	// the first job is picked up by the worker, which frees its type again
	require.NoError(t, q.TryEnqueue(Job{ID: "1", Type: "index_audit"}))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first job not started")
	}

	require.NoError(t, q.TryEnqueue(Job{ID: "2", Type: "index_audit"}))
	assert.ErrorIs(t, q.TryEnqueue(Job{ID: "3", Type: "index_audit"}), ErrAlreadyQueued)
	require.NoError(t, q.TryEnqueue(Job{ID: "4", Type: "other"}))

	close(release)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&handled) == 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestEveryStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ticks int32
	finished := make(chan struct{})
	go func() {
		Every(ctx, 5*time.Millisecond, func(context.Context) {
			if atomic.AddInt32(&ticks, 1) == 3 {
				cancel()
			}
		})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Every did not return after cancel")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&ticks), int32(3))
}
