// Package isolation creates, hands out and removes the per-tenant
// resources behind each isolation mode.
//
// Database isolation runs DDL on the control-plane pool:
//
//   - shared_database: a tenant view per shared table plus a row-level
//     security policy keyed on the app.current_tenant setting.
//   - separate_schema: a tenant schema with copies of the base tables.
//   - separate_database: a tenant database, optionally migrated.
//   - hybrid: shared setup plus a secure schema holding the sensitive
//     tables.
//
// Storage isolation uses a Buckets provider (see package storage) and
// cache isolation registers namespaces and key prefixes in Redis. Both
// are skipped when not configured.
//
// Connection returns a *Conn for a tenant Context. Connections are kept
// in a bounded LRU keyed by tenant and mode; evicted entries close their
// pools.
//
//	svc := isolation.New(pool,
//		isolation.WithPGConfig(cfg.PG),
//		isolation.WithBuckets(buckets),
//		isolation.WithCacheClient(redisClient),
//	)
//	defer svc.Close()
//
//	conn, err := svc.Connection(ctx, tc)
//	if err != nil {
//		return err
//	}
//	defer conn.Release()
//	err = conn.(*isolation.Conn).WithTx(ctx, func(tx pgx.Tx) error {
//		_, err := tx.Exec(ctx, "UPDATE documents SET title = $1 WHERE id = $2", title, id)
//		return err
//	})
package isolation
