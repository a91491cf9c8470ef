package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOption adjusts a pool configuration before the pool is opened.
type PoolOption func(*pgxpool.Config)

// WithMaxConns overrides the pool size.
func WithMaxConns(n int32) PoolOption {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = n
			if c.MinConns > n {
				c.MinConns = n
			}
		}
	}
}

// WithSearchPath pins every connection of the pool to schema, then public.
func WithSearchPath(schema string) PoolOption {
	return func(c *pgxpool.Config) {
		c.ConnConfig.RuntimeParams["search_path"] = QuoteIdent(schema) + ",public"
	}
}

// Connect opens a pool and pings it, retrying with linear backoff until
// RetryAttempts is exhausted or ctx is done.
func Connect(ctx context.Context, cfg Config, opts ...PoolOption) (*pgxpool.Pool, error) {
	return ConnectURL(ctx, cfg.ConnectionString, cfg, opts...)
}

// ConnectURL is Connect against another database with the same limits,
// used for tenant databases.
func ConnectURL(ctx context.Context, url string, cfg Config, opts ...PoolOption) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, ErrEmptyConnectionString
	}
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseDBConfig, err)
	}
	poolConfig.MaxConns = cfg.MaxOpenConns
	poolConfig.MinConns = cfg.MaxIdleConns
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	for _, opt := range opts {
		opt(poolConfig)
	}

	attempts := max(cfg.RetryAttempts, 1)
	var lastErr error
	for i := range attempts {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrFailedToOpenDBConnection, ctx.Err())
		case <-time.After(time.Duration(i+1) * cfg.RetryInterval):
		}
	}
	return nil, errors.Join(ErrFailedToOpenDBConnection, lastErr)
}

// QuoteIdent quotes a SQL identifier.
func QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// QuoteQualified quotes schema.name.
func QuoteQualified(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}
