package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Maelco1/reset/internal/dto"
	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/internal/planning"
)

type boardLister interface {
	List(ctx context.Context, query dto.RequestBoardQuery) ([]models.PlanningChoice, error)
}

type queryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

type changeSource interface {
	Listen(ctx context.Context, handler func(ChangeEvent)) error
}

// BoardSnapshot is the last complete load of the admin request board.
type BoardSnapshot struct {
	Reference string                      `json:"planning_reference"`
	Tour      int                         `json:"tour"`
	Requests  []models.PlanningChoice     `json:"requests"`
	Counts    map[models.ChoiceStatus]int `json:"counts"`
	LoadedAt  time.Time                   `json:"loaded_at"`
}

// BoardUpdate is delivered to subscribers once a change event has been reloaded.
type BoardUpdate struct {
	Event  ChangeEvent                 `json:"event"`
	Counts map[models.ChoiceStatus]int `json:"counts"`
}

// RequestBoard keeps the admin view of the active window. Reloads racing each other are
// resolved by a load guard: only the most recently started one is published.
type RequestBoard struct {
	source   boardLister
	logger   *zap.Logger
	now      func() time.Time
	observer queryObserver

	guard    planning.LoadGuard
	mu       sync.RWMutex
	snapshot BoardSnapshot
	loaded   bool

	subMu       sync.RWMutex
	subscribers []func(BoardUpdate)
}

// BoardOption customizes a RequestBoard.
type BoardOption func(*RequestBoard)

// WithLoadObserver times every board load under the "request_board" label.
func WithLoadObserver(o queryObserver) BoardOption {
	return func(b *RequestBoard) {
		b.observer = o
	}
}

// NewRequestBoard constructs a RequestBoard.
func NewRequestBoard(source boardLister, logger *zap.Logger, opts ...BoardOption) *RequestBoard {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &RequestBoard{source: source, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Reload fetches the whole board. It reports false when a newer reload superseded this one.
func (b *RequestBoard) Reload(ctx context.Context) (bool, error) {
	token := b.guard.Begin()
	start := b.now()
	requests, err := b.source.List(ctx, dto.RequestBoardQuery{})
	if b.observer != nil {
		b.observer.ObserveDBQuery("request_board", b.now().Sub(start))
	}
	if err != nil {
		return false, err
	}
	if !b.guard.Current(token) {
		b.logger.Debug("discarding stale board load", zap.Uint64("token", token))
		return false, nil
	}

	snapshot := BoardSnapshot{
		Requests: requests,
		Counts:   countByStatus(requests),
		LoadedAt: b.now().UTC(),
	}
	if len(requests) > 0 {
		snapshot.Reference = requests[0].PlanningReference
		snapshot.Tour = requests[0].TourNumber
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	// a newer load may have finished while this one waited for the lock
	if !b.guard.Current(token) {
		return false, nil
	}
	b.snapshot = snapshot
	b.loaded = true
	return true, nil
}

// Snapshot returns the last published board, loading it on first use.
func (b *RequestBoard) Snapshot(ctx context.Context) (BoardSnapshot, error) {
	b.mu.RLock()
	snapshot, loaded := b.snapshot, b.loaded
	b.mu.RUnlock()
	if loaded {
		return snapshot, nil
	}
	if _, err := b.Reload(ctx); err != nil {
		return BoardSnapshot{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshot, nil
}

// Subscribe registers fn for every update published after a change event.
func (b *RequestBoard) Subscribe(fn func(BoardUpdate)) {
	b.subMu.Lock()
	b.subscribers = append(b.subscribers, fn)
	b.subMu.Unlock()
}

// HandleChange reloads the board and fans the event out. Superseded reloads stay silent.
func (b *RequestBoard) HandleChange(ctx context.Context, event ChangeEvent) {
	fresh, err := b.Reload(ctx)
	if err != nil {
		b.logger.Warn("failed to reload request board", zap.String("action", event.Action), zap.Error(err))
		return
	}
	if !fresh {
		return
	}
	b.mu.RLock()
	counts := b.snapshot.Counts
	b.mu.RUnlock()

	b.subMu.RLock()
	subscribers := append([](func(BoardUpdate))(nil), b.subscribers...)
	b.subMu.RUnlock()
	update := BoardUpdate{Event: event, Counts: counts}
	for _, fn := range subscribers {
		fn(update)
	}
}

// Run follows source until ctx is done. Each event is reloaded in its own goroutine so a
// slow load never blocks the subscription.
func (b *RequestBoard) Run(ctx context.Context, source changeSource) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	return source.Listen(ctx, func(event ChangeEvent) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.HandleChange(ctx, event)
		}()
	})
}

func countByStatus(requests []models.PlanningChoice) map[models.ChoiceStatus]int {
	counts := map[models.ChoiceStatus]int{
		models.StatusPending:   0,
		models.StatusValidated: 0,
		models.StatusRefused:   0,
	}
	for _, r := range requests {
		if r.IsActive || r.Status != models.StatusPending {
			counts[r.Status]++
		}
	}
	return counts
}
