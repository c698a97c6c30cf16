package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/Maelco1/reset/pkg/errors"
)

const (
	cacheFailureThreshold = 3
	cacheCooldown         = 30 * time.Second
)

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheObserver interface {
	RecordCacheOperation(hit bool, duration time.Duration)
	ObserveCacheWrite(duration time.Duration)
}

// CacheService fronts the catalog and settings cache. After cacheFailureThreshold
// consecutive backend errors it stops calling Redis for cacheCooldown and every read is a
// miss, so a flapping Redis only costs database reads.
type CacheService struct {
	store   cacheStore
	metrics cacheObserver
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
	now     func() time.Time

	mu        sync.Mutex
	failures  int
	openUntil time.Time
}

// NewCacheService constructs a cache service. A nil metrics observer is allowed.
func NewCacheService(store cacheStore, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CacheService{store: store, ttl: defaultTTL, logger: logger, enabled: enabled, now: time.Now}
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

// Enabled reports whether reads and writes reach the backend right now.
func (s *CacheService) Enabled() bool {
	if s == nil || !s.enabled || s.store == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.now().Before(s.openUntil)
}

// Get loads key into dest and reports a hit. Misses and a tripped breaker return false, nil.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := s.now()
	err := s.store.Get(ctx, key, dest)
	hit := err == nil
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(hit, s.now().Sub(start))
	}
	switch {
	case hit, errors.Is(err, appErrors.ErrCacheMiss):
		s.succeeded()
		return hit, nil
	default:
		s.failed("get", key, err)
		return false, err
	}
}

// Set stores value under key. ttl <= 0 uses the default TTL.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	start := s.now()
	err := s.store.Set(ctx, key, value, ttl)
	if s.metrics != nil {
		s.metrics.ObserveCacheWrite(s.now().Sub(start))
	}
	if err != nil {
		s.failed("set", key, err)
		return err
	}
	s.succeeded()
	return nil
}

// Invalidate drops every key matching pattern. It is attempted even while the breaker is
// open: a stale catalog outliving an admin edit is worse than one more failing call.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if s == nil || !s.enabled || s.store == nil {
		return nil
	}
	if err := s.store.DeleteByPattern(ctx, pattern); err != nil {
		s.failed("invalidate", pattern, err)
		return err
	}
	return nil
}

func (s *CacheService) succeeded() {
	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()
}

func (s *CacheService) failed(op, key string, err error) {
	s.mu.Lock()
	s.failures++
	tripped := s.failures >= cacheFailureThreshold
	if tripped {
		s.failures = 0
		s.openUntil = s.now().Add(cacheCooldown)
	}
	s.mu.Unlock()

	s.logger.Warn("cache "+op+" failed", zap.String("key", key), zap.Error(err))
	if tripped {
		s.logger.Warn("cache disabled after repeated failures", zap.Duration("cooldown", cacheCooldown))
	}
}
