package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"playground-gateway/internal/metrics"
	"playground-gateway/pkg/logging/logging"
)

// LoggingStore wraps a Store with structured logging and hit metrics.
type LoggingStore struct {
	inner Store
}

func NewLoggingStore(inner Store) Store {
	return &LoggingStore{inner: inner}
}

func (s *LoggingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := s.inner.Get(ctx, key)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
		metrics.DiscoveryCacheHitsTotal.Inc()
	}

	fields := []zap.Field{
		zap.String("cache_key", key),
		zap.String("cache_result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	}

	if err != nil {
		logger.Error("cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("cache_get", fields...)
	}

	return value, ok, err
}

func (s *LoggingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := s.inner.Set(ctx, key, value, ttl)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)

	fields := []zap.Field{
		zap.String("cache_key", key),
		zap.Duration("ttl", ttl),
		zap.Float64("latency_ms", latencyMs),
	}

	if err != nil {
		logger.Error("cache_set", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("cache_set", fields...)
	}

	return err
}
