package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/metrics"
)

const namespace = "dispatch:"

type Config struct {
	TodayTTL  time.Duration
	StableTTL time.Duration
}

// Cache is a Redis read-through cache. It is an optimisation only: every
// Redis failure is logged and the loader is used instead. A Cache built with
// a nil client is disabled and always loads.
type Cache struct {
	client  *redis.Client
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(client *redis.Client, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Cache {
	if cfg.TodayTTL <= 0 {
		cfg.TodayTTL = time.Minute
	}
	if cfg.StableTTL <= 0 {
		cfg.StableTTL = 10 * time.Minute
	}
	return &Cache{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// TTLFor picks the short TTL for today and the near future and the long TTL
// for past dates, whose bookings rarely change.
func (c *Cache) TTLFor(date time.Time) time.Duration {
	if c == nil {
		return time.Minute
	}
	today := c.now().UTC().Truncate(24 * time.Hour)
	if date.Before(today) {
		return c.cfg.StableTTL
	}
	return c.cfg.TodayTTL
}

func (c *Cache) StableTTL() time.Duration {
	if c == nil {
		return 10 * time.Minute
	}
	return c.cfg.StableTTL
}

// Fetch returns the cached value under key, or calls load and caches its result.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	if !c.enabled() {
		return load(ctx)
	}

	raw, err := c.client.Get(ctx, namespace+key).Bytes()
	switch {
	case err == nil:
		var v T
		if jsonErr := json.Unmarshal(raw, &v); jsonErr == nil {
			c.metrics.Cache("hit")
			return v, nil
		}
		c.logger.Warn("cache entry undecodable, reloading", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.metrics.Cache("error")
		c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}

	c.metrics.Cache("miss")
	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return v, nil
	}
	if err := c.client.Set(ctx, namespace+key, data, ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

// DeletePrefix removes every key starting with one of the prefixes.
func (c *Cache) DeletePrefix(ctx context.Context, prefixes ...string) {
	if !c.enabled() {
		return
	}
	for _, p := range prefixes {
		iter := c.client.Scan(ctx, 0, namespace+p+"*", 200).Iterator()
		var batch []string
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == 200 {
				c.del(ctx, batch)
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			c.logger.Warn("cache scan failed", zap.String("prefix", p), zap.Error(err))
		}
		if len(batch) > 0 {
			c.del(ctx, batch)
		}
	}
}

func (c *Cache) del(ctx context.Context, keys []string) {
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache delete failed", zap.Int("keys", len(keys)), zap.Error(err))
	}
}

// Invalidate drops the date-scoped listings, availability and every conflict
// check, plus anything keyed by the given staff members.
func (c *Cache) Invalidate(ctx context.Context, date time.Time, staffIDs ...uuid.UUID) {
	prefixes := []string{
		prefixAppointments + day(date) + ":",
		prefixAvailability + day(date) + ":",
		prefixConflicts,
	}
	for _, id := range staffIDs {
		if id == uuid.Nil {
			continue
		}
		prefixes = append(prefixes, prefixStaff+id.String()+":")
	}
	c.DeletePrefix(ctx, prefixes...)
}

// InvalidateRoster drops every cached availability listing. Deactivation and
// FIFO position are not tied to one date.
func (c *Cache) InvalidateRoster(ctx context.Context) {
	c.DeletePrefix(ctx, prefixAvailability)
}

func (c *Cache) InvalidateAppointment(ctx context.Context, id uuid.UUID, date time.Time, staffIDs ...uuid.UUID) {
	if c.enabled() {
		if err := c.client.Del(ctx, namespace+AppointmentKey(id)).Err(); err != nil {
			c.logger.Warn("cache delete failed", zap.String("appointment_id", id.String()), zap.Error(err))
		}
	}
	c.Invalidate(ctx, date, staffIDs...)
}
