package pgcache

import (
	"context"

	"go.uber.org/zap"

	"chainLens/internal/apperr"
)

// Steps describes one cached value. Read reports found=false on a miss.
type Steps[T any] struct {
	Read    func(ctx context.Context, q Querier) (value T, found bool, err error)
	Compute func(ctx context.Context) (T, error)
	Write   func(ctx context.Context, q Querier, value T) error
}

// ReadThrough serves a value from network's cache database, falling back to
// Compute on a miss or any database error. The computed value is written back
// best-effort: write failures are logged and counted, never returned.
// A nil cache always computes.
func ReadThrough[T any](ctx context.Context, c *Cache, network string, steps Steps[T]) (T, error) {
	if c == nil {
		return steps.Compute(ctx)
	}

	q, release, err := c.Pool(ctx, network)
	if err != nil {
		c.metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("cache unavailable", zap.String("network", network), zap.Error(err))
		return steps.Compute(ctx)
	}
	defer release()

	value, found, err := steps.Read(ctx, q)
	switch {
	case err != nil:
		c.metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("cache read failed", zap.String("network", network), zap.Error(err))
	case found:
		c.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return value, nil
	default:
		c.metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	value, err = steps.Compute(ctx)
	if err != nil {
		return value, err
	}

	if steps.Write != nil {
		if err := steps.Write(ctx, q, value); err != nil {
			c.metrics.CacheWriteFailures.WithLabelValues(network).Inc()
			c.logger.Warn("cache write-back failed", zap.String("network", network),
				zap.Error(apperr.CacheWritef("%s: %v", network, err)))
		}
	}
	return value, nil
}
