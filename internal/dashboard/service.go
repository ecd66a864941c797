package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/dunia-ops/dunia-ops/internal/shared"
)

// Collector produces a fresh overview for a given day.
type Collector interface {
	Collect(ctx context.Context, today time.Time) (Overview, error)
}

// Service serves the cached dashboard overview. Concurrent cache misses for
// the same day collapse into one database round trip.
type Service struct {
	collector Collector
	cache     *redis.Client
	logger    *slog.Logger
	ttl       time.Duration
	group     singleflight.Group
	now       func() time.Time
}

// NewService constructs Service. A nil cache disables caching entirely.
func NewService(collector Collector, cache *redis.Client, logger *slog.Logger, ttl time.Duration) *Service {
	return &Service{collector: collector, cache: cache, logger: logger, ttl: ttl, now: time.Now}
}

// Overview returns the aggregate snapshot, from cache when fresh.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	today := shared.DateOf(s.now())
	key := cacheKey(today)

	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key).Bytes()
		if err == nil {
			var cached Overview
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
			s.logger.Warn("dashboard cache entry unreadable, refreshing", "key", key)
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		overview, err := s.collector.Collect(ctx, today)
		if err != nil {
			return Overview{}, err
		}
		overview.GeneratedAt = s.now().UTC()
		if s.cache != nil {
			raw, err := json.Marshal(overview)
			if err == nil {
				if err := s.cache.Set(ctx, key, raw, s.ttl).Err(); err != nil {
					s.logger.Warn("dashboard cache write failed", "error", err)
				}
			}
		}
		return overview, nil
	})
	if err != nil {
		return Overview{}, err
	}
	return v.(Overview), nil
}

// Invalidate drops the cached overview for today. Mutating services may call
// this when staleness matters more than the TTL.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	key := cacheKey(shared.DateOf(s.now()))
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", "error", err)
	}
}

func cacheKey(day time.Time) string {
	return fmt.Sprintf("dashboard:overview:%s", day.Format("2006-01-02"))
}
