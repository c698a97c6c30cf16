package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/Maelco1/reset/pkg/errors"
)

type cacheStoreStub struct {
	getErr    error
	setErr    error
	deleteErr error
	gets      int
	sets      int
	lastTTL   time.Duration
	deleted   []string
}

func (c *cacheStoreStub) Get(ctx context.Context, key string, dest interface{}) error {
	c.gets++
	return c.getErr
}

func (c *cacheStoreStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.sets++
	c.lastTTL = ttl
	return c.setErr
}

func (c *cacheStoreStub) DeleteByPattern(ctx context.Context, pattern string) error {
	c.deleted = append(c.deleted, pattern)
	return c.deleteErr
}

func TestCacheServiceDisabled(t *testing.T) {
	store := &cacheStoreStub{}
	svc := NewCacheService(store, nil, time.Minute, zap.NewNop(), false)

	hit, err := svc.Get(context.Background(), "planning:settings", &struct{}{})
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, svc.Set(context.Background(), "planning:settings", 1, 0))
	require.NoError(t, svc.Invalidate(context.Background(), "planning:*"))
	assert.Zero(t, store.gets+store.sets)
	assert.Empty(t, store.deleted)
}

func TestCacheServiceHitMissAndDefaultTTL(t *testing.T) {
	store := &cacheStoreStub{}
	metrics := NewMetricsService()
	svc := NewCacheService(store, metrics, 5*time.Minute, zap.NewNop(), true)

	hit, err := svc.Get(context.Background(), "planning:settings", &struct{}{})
	require.NoError(t, err)
	assert.True(t, hit)

	store.getErr = appErrors.ErrCacheMiss
	hit, err = svc.Get(context.Background(), "planning:settings", &struct{}{})
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(context.Background(), "planning:settings", 1, 0))
	assert.Equal(t, 5*time.Minute, store.lastTTL)

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(1), snapshot.CacheMisses)
}

func TestCacheServiceBreakerTripsAndRecovers(t *testing.T) {
	store := &cacheStoreStub{getErr: errors.New("connection refused")}
	svc := NewCacheService(store, nil, time.Minute, zap.NewNop(), true)
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	for i := 0; i < cacheFailureThreshold; i++ {
		_, err := svc.Get(context.Background(), "planning:settings", &struct{}{})
		require.Error(t, err)
	}
	assert.False(t, svc.Enabled())

	hit, err := svc.Get(context.Background(), "planning:settings", &struct{}{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, cacheFailureThreshold, store.gets)

	require.NoError(t, svc.Invalidate(context.Background(), "planning:*"))
	assert.Equal(t, []string{"planning:*"}, store.deleted)

	now = now.Add(cacheCooldown)
	store.getErr = nil
	assert.True(t, svc.Enabled())
	hit, err = svc.Get(context.Background(), "planning:settings", &struct{}{})
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestCacheServiceSuccessResetsFailures(t *testing.T) {
	store := &cacheStoreStub{setErr: errors.New("timeout")}
	svc := NewCacheService(store, nil, time.Minute, zap.NewNop(), true)

	for i := 0; i < cacheFailureThreshold-1; i++ {
		require.Error(t, svc.Set(context.Background(), "k", 1, 0))
	}
	store.setErr = nil
	require.NoError(t, svc.Set(context.Background(), "k", 1, 0))
	store.setErr = errors.New("timeout")
	require.Error(t, svc.Set(context.Background(), "k", 1, 0))
	assert.True(t, svc.Enabled())
}
