package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PlanningChangedEvent is the only event type published on the change channel.
const PlanningChangedEvent = "planning.changed"

// Change actions carried by events.
const (
	ChangeActionSubmit     = "submit"
	ChangeActionAccept     = "accept"
	ChangeActionRefuse     = "refuse"
	ChangeActionAutoApply  = "auto_assignment_apply"
	ChangeActionAutoUndo   = "auto_assignment_undo"
	ChangeActionStepAccept = "auto_assignment_step_accept"
)

// ChangeEvent tells listeners that planning requests changed and views must reload.
type ChangeEvent struct {
	Type      string    `json:"type"`
	Action    string    `json:"action"`
	Reference string    `json:"planning_reference"`
	Tour      int       `json:"tour"`
	ChoiceIDs []int64   `json:"choice_ids,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	At        time.Time `json:"at"`
}

type changePublisher interface {
	Publish(ctx context.Context, event ChangeEvent)
}

// ChangeNotifier publishes change events on a Redis channel. Without a client, events are
// delivered in-process to the registered listeners.
type ChangeNotifier struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger

	mu        sync.RWMutex
	listeners []func(ChangeEvent)
}

// NewChangeNotifier constructs a ChangeNotifier.
func NewChangeNotifier(client *redis.Client, channel string, logger *zap.Logger) *ChangeNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if channel == "" {
		channel = "planning:changes"
	}
	return &ChangeNotifier{client: client, channel: channel, logger: logger}
}

// Publish emits event. Failures are logged; callers never fail because of the feed.
func (n *ChangeNotifier) Publish(ctx context.Context, event ChangeEvent) {
	if n == nil {
		return
	}
	if event.Type == "" {
		event.Type = PlanningChangedEvent
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	if n.client == nil {
		n.dispatch(event)
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("failed to marshal change event", zap.Error(err))
		return
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		n.logger.Warn("failed to publish change event", zap.String("channel", n.channel), zap.Error(err))
	}
}

// Listen delivers every event to handler until ctx is done.
func (n *ChangeNotifier) Listen(ctx context.Context, handler func(ChangeEvent)) error {
	if n.client == nil {
		n.mu.Lock()
		n.listeners = append(n.listeners, handler)
		n.mu.Unlock()
		<-ctx.Done()
		return nil
	}

	sub := n.client.Subscribe(ctx, n.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	n.logger.Info("listening for planning changes", zap.String("channel", n.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				n.logger.Warn("failed to decode change event", zap.Error(err))
				continue
			}
			handler(event)
		}
	}
}

func (n *ChangeNotifier) dispatch(event ChangeEvent) {
	n.mu.RLock()
	listeners := append([](func(ChangeEvent))(nil), n.listeners...)
	n.mu.RUnlock()
	for _, listener := range listeners {
		listener(event)
	}
}
