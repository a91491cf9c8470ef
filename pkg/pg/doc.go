// Package pg opens pgx connection pools and applies goose migrations.
//
// The control-plane pool is opened from Config, usually loaded with
// config.Load[pg.Config](). ConnectURL opens additional pools with the same
// limits for tenant databases, and WithSearchPath pins a pool to a tenant
// schema:
//
//	pool, err := pg.ConnectURL(ctx, url, cfg, pg.WithSearchPath("tenant_abc"))
//
// The error helpers classify pgx errors so callers can map them to their
// own sentinels without importing pgconn.
package pg
