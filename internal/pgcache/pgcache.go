// Package pgcache keeps one Postgres pool per network for read-through caching
// of chain-derived values.
package pgcache

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"chainLens/internal/metrics"
	"chainLens/internal/resource"
)

// Querier is the part of *pgxpool.Pool the cache hands out.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Connector opens a pool for dsn.
type Connector func(ctx context.Context, dsn string) (Querier, error)

// ChainIDSource maps a network name to its chain id.
type ChainIDSource interface {
	ChainID(name string) (uint64, error)
}

// Config wires a Cache. Credentials is required.
type Config struct {
	Credentials CredentialSource
	Connect     Connector
	Policy      resource.Policy
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// Cache hands out one Querier per network, opened on first use.
type Cache struct {
	networks ChainIDSource
	creds    CredentialSource
	connect  Connector
	pools    *resource.Cache[Querier]
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// New creates a cache over the given network lookup.
func New(networks ChainIDSource, cfg Config) *Cache {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop()
	}
	if cfg.Connect == nil {
		cfg.Connect = Connect
	}
	c := &Cache{
		networks: networks,
		creds:    cfg.Credentials,
		connect:  cfg.Connect,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	c.pools = resource.New[Querier](cfg.Policy, func(key string, pool Querier) {
		c.logger.Debug("closing database pool", zap.String("network", key))
		pool.Close()
	})
	return c
}

// Connect is the default Connector: a pgxpool verified with a ping.
func Connect(ctx context.Context, dsn string) (Querier, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Pool leases the pool of network, creating it on first use. The returned
// func releases the lease; a pool dropped while leased closes on release.
func (c *Cache) Pool(ctx context.Context, network string) (Querier, func(), error) {
	key := strings.ToLower(strings.TrimSpace(network))
	chainID, err := c.networks.ChainID(key)
	if err != nil {
		return nil, nil, err
	}
	return c.pools.Acquire(ctx, key, func(ctx context.Context) (Querier, error) {
		creds, err := c.creds.Credentials(chainID)
		if err != nil {
			return nil, err
		}
		pool, err := c.connect(ctx, creds.DSN())
		if err != nil {
			return nil, fmt.Errorf("open cache database for %s: %w", key, err)
		}
		c.metrics.DBPoolsCreated.WithLabelValues(key).Inc()
		c.logger.Info("database pool created", zap.String("network", key), zap.Uint64("chain_id", chainID), zap.String("host", creds.Host))
		return pool, nil
	})
}

// Query runs a parameterized query on network's pool. The pool stays leased
// until the rows are closed or exhausted.
func (c *Cache) Query(ctx context.Context, network, sql string, args ...any) (pgx.Rows, error) {
	pool, release, err := c.Pool(ctx, network)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		release()
		return nil, err
	}
	return &leasedRows{Rows: rows, release: release}, nil
}

// Exec runs a parameterized statement on network's pool.
func (c *Cache) Exec(ctx context.Context, network, sql string, args ...any) (pgconn.CommandTag, error) {
	pool, release, err := c.Pool(ctx, network)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	defer release()
	return pool.Exec(ctx, sql, args...)
}

// leasedRows releases its pool lease once iteration ends.
type leasedRows struct {
	pgx.Rows
	release func()
}

func (r *leasedRows) Next() bool {
	if r.Rows.Next() {
		return true
	}
	r.release()
	return false
}

func (r *leasedRows) Close() {
	r.Rows.Close()
	r.release()
}

// Invalidate forgets network's pool, closing it once no request holds it.
func (c *Cache) Invalidate(network string) bool {
	return c.pools.Invalidate(strings.ToLower(strings.TrimSpace(network)))
}

// Close drops every pool.
func (c *Cache) Close() {
	c.pools.Purge()
}
