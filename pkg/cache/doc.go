// Package cache provides a generic, size-bounded LRU used for pooled
// resources such as per-tenant database connections.
//
// Values leaving the cache are handed to an EvictFunc outside the lock,
// which is where pooled resources get closed:
//
//	pool := cache.NewLRU[string, *pgxpool.Pool](128, func(_ string, p *pgxpool.Pool) {
//		p.Close()
//	})
package cache
