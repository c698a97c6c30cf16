package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeNotifierDeliversLocallyWithoutRedis(t *testing.T) {
	notifier := NewChangeNotifier(nil, "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan ChangeEvent, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = notifier.Listen(ctx, func(event ChangeEvent) { received <- event })
	}()

	require.Eventually(t, func() bool {
		notifier.mu.RLock()
		defer notifier.mu.RUnlock()
		return len(notifier.listeners) == 1
	}, time.Second, 10*time.Millisecond)

	notifier.Publish(ctx, ChangeEvent{Action: ChangeActionAccept, Reference: "tour1-2024-06-07", ChoiceIDs: []int64{7}})

	select {
	case event := <-received:
		assert.Equal(t, PlanningChangedEvent, event.Type)
		assert.Equal(t, ChangeActionAccept, event.Action)
		assert.Equal(t, []int64{7}, event.ChoiceIDs)
		assert.False(t, event.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	<-done
}

func TestChangeNotifierNilIsNoop(t *testing.T) {
	var notifier *ChangeNotifier
	assert.NotPanics(t, func() {
		notifier.Publish(context.Background(), ChangeEvent{Action: ChangeActionSubmit})
	})
}
