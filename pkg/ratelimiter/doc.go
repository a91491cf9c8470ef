// Package ratelimiter enforces per-tenant API rate limits with token
// buckets.
//
// A tenant's limits come from its resource allocation
// (Resources.API.RateLimit): one bucket refills PerMinute tokens every
// minute and a second refills PerHour tokens every hour. A request
// spends one token from each and is refused with 429 when either bucket
// is empty. Zero limits disable the matching bucket.
//
//	limit := ratelimiter.TenantMiddleware(ratelimiter.NewRedisStore(rdb, "tenancy:rl:"))
//	r.With(tenantMiddleware, limit).Get("/app/cases", listCases)
//
// MemoryStore keeps buckets in-process for tests and single replicas.
// RedisStore runs the bucket update as one Lua script so replicas share
// the same budget.
package ratelimiter
