// Package rediscache is a read-through Redis cache in front of a
// tenant.Store, shared by every instance of the service.
//
//	store := rediscache.New(pgstore.New(pool), redisClient,
//		rediscache.WithConfig(cfg.RecordCache), rediscache.WithCipher(cipher))
//
// Cached records expire after the TTL and are dropped on Update and
// Delete. With WithCipher, isolation connection strings stay encrypted
// inside cached entries.
package rediscache
