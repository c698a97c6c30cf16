package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueRetriesUntilSuccess(t *testing.T) {
	var calls int32
	done := make(chan string, 1)
	q := NewQueue("exports", func(_ context.Context, job Job[string]) error {
		if atomic.AddInt32(&calls, 1) < 2 {
			return errors.New("boom")
		}
		done <- job.Payload
		return nil
	}, QueueConfig{RetryDelay: 5 * time.Millisecond, MaxRetries: 2})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job[string]{ID: "1", Payload: "csv"}))
	select {
	case payload := <-done:
		require.Equal(t, "csv", payload)
	case <-time.After(time.Second):
		t.Fatal("job never completed")
	}
}

func TestQueueGivesUp(t *testing.T) {
	gaveUp := make(chan string, 1)
	q := NewQueue("exports", func(context.Context, Job[int]) error {
		return errors.New("always")
	}, QueueConfig{RetryDelay: time.Millisecond, MaxRetries: 1, OnGiveUp: func(id string, _ error) { gaveUp <- id }})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job[int]{ID: "job-9"}))
	select {
	case id := <-gaveUp:
		require.Equal(t, "job-9", id)
	case <-time.After(time.Second):
		t.Fatal("queue never gave up")
	}
}

func TestEnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue("exports", func(context.Context, Job[int]) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job[int]{ID: "x"}))
}
