package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/i474232898/weather-monitor/internal/weather"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// NewRedisClient returns a configured go-redis client and validates the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedSource keeps the last answer of a source in Redis for a short while.
// Cache failures are logged and never fail a fetch.
type CachedSource struct {
	next   weather.Source
	client cacheClient
	ttl    time.Duration
	clock  weather.Clock
	logger *zap.Logger
}

var _ weather.Source = (*CachedSource)(nil)

func NewCachedSource(next weather.Source, client cacheClient, ttl time.Duration, clock weather.Clock, logger *zap.Logger) *CachedSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSource{
		next:   next,
		client: client,
		ttl:    ttl,
		clock:  clockOrSystem(clock),
		logger: logger,
	}
}

func (s *CachedSource) Name() string {
	return s.next.Name()
}

func (s *CachedSource) FetchToday(ctx context.Context, c weather.Coordinates) ([]weather.Record, error) {
	key := s.cacheKey(c)

	if cached, ok := s.getFromCache(ctx, key); ok {
		return cached, nil
	}

	records, err := s.next.FetchToday(ctx, c)
	if err != nil {
		return nil, err
	}

	s.store(ctx, key, records)
	return records, nil
}

// cacheKey includes the date so that answers never leak into the next day.
func (s *CachedSource) cacheKey(c weather.Coordinates) string {
	return "weather:today:" + s.clock.Now().Format("2006-01-02") + ":" + c.Key()
}

func (s *CachedSource) getFromCache(ctx context.Context, key string) ([]weather.Record, bool) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("weather cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	var records []weather.Record
	if err := json.Unmarshal([]byte(val), &records); err != nil {
		s.logger.Warn("weather cache entry is corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	s.logger.Debug("weather cache hit", zap.String("key", key))
	return records, true
}

func (s *CachedSource) store(ctx context.Context, key string, records []weather.Record) {
	b, err := json.Marshal(records)
	if err != nil {
		s.logger.Warn("weather cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, key, b, s.ttl).Err(); err != nil {
		s.logger.Warn("weather cache write failed", zap.String("key", key), zap.Error(err))
	}
}
