package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Maelco1/reset/internal/planning"
	appErrors "github.com/Maelco1/reset/pkg/errors"
)

// DraftRepository keeps in-progress selection sets in Redis. Without a client drafts live in
// process memory, which is enough for tests and single-node development.
type DraftRepository struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.Mutex
	local map[string][]byte
}

// NewDraftRepository constructs a draft repository.
func NewDraftRepository(client *redis.Client, ttl time.Duration) *DraftRepository {
	return &DraftRepository{client: client, ttl: ttl, local: make(map[string][]byte)}
}

// DraftKey identifies the draft of a practitioner for one planning reference.
func DraftKey(reference, trigram string) string {
	return fmt.Sprintf("planning:draft:%s:%s", reference, trigram)
}

// Load returns the stored snapshot or appErrors.ErrCacheMiss.
func (r *DraftRepository) Load(ctx context.Context, key string) (planning.Snapshot, error) {
	var snapshot planning.Snapshot
	raw, err := r.read(ctx, key)
	if err != nil {
		return snapshot, err
	}
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return snapshot, fmt.Errorf("unmarshal draft %s: %w", key, err)
	}
	return snapshot, nil
}

// Save stores a snapshot, refreshing its TTL.
func (r *DraftRepository) Save(ctx context.Context, key string, snapshot planning.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal draft %s: %w", key, err)
	}
	if r.client == nil {
		r.mu.Lock()
		r.local[key] = payload
		r.mu.Unlock()
		return nil
	}
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete drops a draft.
func (r *DraftRepository) Delete(ctx context.Context, key string) error {
	if r.client == nil {
		r.mu.Lock()
		delete(r.local, key)
		r.mu.Unlock()
		return nil
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

func (r *DraftRepository) read(ctx context.Context, key string) ([]byte, error) {
	if r.client == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		raw, ok := r.local[key]
		if !ok {
			return nil, appErrors.ErrCacheMiss
		}
		return raw, nil
	}
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return raw, nil
}
