package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maelco1/reset/internal/dto"
	"github.com/Maelco1/reset/internal/models"
)

type boardListerStub struct {
	mu      sync.Mutex
	results [][]models.PlanningChoice
	gates   []chan struct{}
	calls   int
	err     error
}

func (s *boardListerStub) List(ctx context.Context, query dto.RequestBoardQuery) ([]models.PlanningChoice, error) {
	s.mu.Lock()
	call := s.calls
	s.calls++
	var gate chan struct{}
	if call < len(s.gates) {
		gate = s.gates[call]
	}
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if s.err != nil {
		return nil, s.err
	}
	if call < len(s.results) {
		return s.results[call], nil
	}
	return s.results[len(s.results)-1], nil
}

func TestRequestBoardDiscardsStaleLoad(t *testing.T) {
	slow := make(chan struct{})
	lister := &boardListerStub{
		results: [][]models.PlanningChoice{
			{pendingChoice(1, "ABC", "2024-06-03", 1, 1, 1, 1)},
			{pendingChoice(1, "ABC", "2024-06-03", 1, 1, 1, 1), pendingChoice(2, "DEF", "2024-06-04", 1, 1, 1, 1)},
		},
		gates: []chan struct{}{slow},
	}
	board := NewRequestBoard(lister, nil)

	type outcome struct {
		fresh bool
		err   error
	}
	first := make(chan outcome, 1)
	go func() {
		fresh, err := board.Reload(context.Background())
		first <- outcome{fresh, err}
	}()
	require.Eventually(t, func() bool {
		lister.mu.Lock()
		defer lister.mu.Unlock()
		return lister.calls == 1
	}, time.Second, time.Millisecond)

	fresh, err := board.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, fresh)

	close(slow)
	res := <-first
	require.NoError(t, res.err)
	assert.False(t, res.fresh, "the older load must not overwrite the newer one")

	snapshot, err := board.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snapshot.Requests, 2)
	assert.Equal(t, testReference, snapshot.Reference)
	assert.Equal(t, 2, snapshot.Counts[models.StatusPending])
}

type queryObserverStub struct {
	labels []string
}

func (o *queryObserverStub) ObserveDBQuery(label string, duration time.Duration) {
	o.labels = append(o.labels, label)
}

func TestRequestBoardSnapshotLoadsOnce(t *testing.T) {
	lister := &boardListerStub{results: [][]models.PlanningChoice{{pendingChoice(1, "ABC", "2024-06-03", 1, 1, 1, 1)}}}
	observer := &queryObserverStub{}
	board := NewRequestBoard(lister, nil, WithLoadObserver(observer))

	_, err := board.Snapshot(context.Background())
	require.NoError(t, err)
	_, err = board.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, lister.calls)
	assert.Equal(t, []string{"request_board"}, observer.labels)
}

func TestRequestBoardHandleChangeNotifiesSubscribers(t *testing.T) {
	validated := pendingChoice(2, "DEF", "2024-06-04", 1, 1, 1, 1)
	validated.Status = models.StatusValidated
	lister := &boardListerStub{results: [][]models.PlanningChoice{{pendingChoice(1, "ABC", "2024-06-03", 1, 1, 1, 1), validated}}}
	board := NewRequestBoard(lister, nil)

	var updates []BoardUpdate
	board.Subscribe(func(u BoardUpdate) { updates = append(updates, u) })
	board.HandleChange(context.Background(), ChangeEvent{Action: ChangeActionAccept, ChoiceIDs: []int64{2}})

	require.Len(t, updates, 1)
	assert.Equal(t, ChangeActionAccept, updates[0].Event.Action)
	assert.Equal(t, 1, updates[0].Counts[models.StatusPending])
	assert.Equal(t, 1, updates[0].Counts[models.StatusValidated])
}

func TestRequestBoardHandleChangeSkipsOnError(t *testing.T) {
	lister := &boardListerStub{err: errors.New("db down")}
	board := NewRequestBoard(lister, nil)

	called := false
	board.Subscribe(func(BoardUpdate) { called = true })
	board.HandleChange(context.Background(), ChangeEvent{Action: ChangeActionRefuse})
	assert.False(t, called)
}

func TestRequestBoardRunFollowsNotifier(t *testing.T) {
	lister := &boardListerStub{results: [][]models.PlanningChoice{{}}}
	board := NewRequestBoard(lister, nil)
	notifier := NewChangeNotifier(nil, "", nil)

	updates := make(chan BoardUpdate, 1)
	board.Subscribe(func(u BoardUpdate) { updates <- u })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- board.Run(ctx, notifier) }()

	require.Eventually(t, func() bool {
		notifier.mu.RLock()
		defer notifier.mu.RUnlock()
		return len(notifier.listeners) == 1
	}, time.Second, time.Millisecond)
	notifier.Publish(context.Background(), ChangeEvent{Action: ChangeActionAutoApply})

	select {
	case u := <-updates:
		assert.Equal(t, PlanningChangedEvent, u.Event.Type)
	case <-time.After(time.Second):
		t.Fatal("no board update")
	}
	cancel()
	require.NoError(t, <-done)
}
